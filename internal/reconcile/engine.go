// Package reconcile сводит удаленный список историй и локальный кэш в единое
// упорядоченное представление и проводит одиночные изменения через шлюз в кэш.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// sharedRefreshTimeout ограничивает общий запрос списка, который больше не ждет ни один вызывающий.
const sharedRefreshTimeout = 30 * time.Second

// GetOptions - параметры чтения списка историй.
type GetOptions struct {
	// ForceRefresh запрашивает сервис даже если монитор сообщает об отсутствии сети.
	ForceRefresh bool
	// Order по умолчанию models.OrderCreatedDesc.
	Order models.StoryOrder
}

// Engine - единственная точка чтения историй пользователя.
type Engine struct {
	cache        interfaces.StoryCache
	gateway      interfaces.StoryGateway
	connectivity interfaces.ConnectivityChecker
	logger       *zap.Logger

	refresh singleflight.Group
}

// NewEngine создает движок. connectivity может быть nil, тогда сеть считается доступной.
func NewEngine(cache interfaces.StoryCache, gateway interfaces.StoryGateway, connectivity interfaces.ConnectivityChecker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cache:        cache,
		gateway:      gateway,
		connectivity: connectivity,
		logger:       logger.Named("ReconciliationEngine"),
	}
}

// GetStories возвращает канонический список историй пользователя.
// В офлайне без ForceRefresh шлюз не вызывается. Ошибка сети возвращается
// только если для пользователя нет записи в кэше.
func (e *Engine) GetStories(ctx context.Context, userID string, opts GetOptions) ([]models.Story, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	log := e.logger.With(zap.String("user_id", userID))

	if !opts.ForceRefresh && !e.online() {
		log.Debug("Offline, serving stories from cache")
		return Canonical(e.cache.GetAll(ctx, userID), opts.Order), nil
	}

	remote, err := e.refreshUser(ctx, userID)
	if err == nil {
		return Canonical(remote, opts.Order), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !e.cache.Exists(ctx, userID) {
		log.Warn("Remote refresh failed and no cache entry exists", zap.Error(err))
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	log.Warn("Remote refresh failed, serving cached stories", zap.Error(err))
	return Canonical(e.cache.GetAll(ctx, userID), opts.Order), nil
}

// refreshUser объединяет параллельные обновления одного пользователя в один запрос к шлюзу.
// Общий запрос не зависит от отмены контекста отдельного вызывающего, каждый из них
// ждет результата только пока жив его собственный контекст.
func (e *Engine) refreshUser(ctx context.Context, userID string) ([]models.Story, error) {
	ch := e.refresh.DoChan(userID, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedRefreshTimeout)
		defer cancel()

		stories, err := e.gateway.ListStories(refreshCtx, userID)
		if err != nil {
			return nil, err
		}
		stories = Canonical(stories, models.OrderCreatedDesc)
		if err := e.cache.SaveAll(refreshCtx, userID, stories); err != nil {
			e.logger.Error("Failed to save refreshed stories to cache",
				zap.String("user_id", userID), zap.Error(err))
		}
		return stories, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			e.logger.Debug("Joined in-flight refresh", zap.String("user_id", userID))
		}
		return res.Val.([]models.Story), nil
	}
}

// GetStory возвращает историю с сервиса и обновляет ее копию в кэше.
// В офлайне или при сетевой ошибке возвращается кэшированная копия.
func (e *Engine) GetStory(ctx context.Context, userID, storyID string) (models.Story, error) {
	if err := validateUserID(userID); err != nil {
		return models.Story{}, err
	}
	if !e.online() {
		return e.cache.GetByID(ctx, userID, storyID)
	}

	story, err := e.gateway.GetStory(ctx, storyID)
	if err != nil {
		if models.IsTransient(err) {
			if cached, cacheErr := e.cache.GetByID(ctx, userID, storyID); cacheErr == nil {
				e.logger.Warn("Remote fetch failed, serving cached story",
					zap.String("user_id", userID), zap.String("story_id", storyID), zap.Error(err))
				return cached, nil
			}
		}
		return models.Story{}, err
	}
	e.upsertCache(ctx, userID, *story)
	return story.Clone(), nil
}

// CreateStory создает историю на сервисе и добавляет результат в кэш.
func (e *Engine) CreateStory(ctx context.Context, userID string, story models.Story) (models.Story, error) {
	if err := validateUserID(userID); err != nil {
		return models.Story{}, err
	}
	if story.OwnerID == "" {
		story.OwnerID = userID
	}
	created, err := e.gateway.CreateStory(ctx, story)
	if err != nil {
		return models.Story{}, err
	}
	e.upsertCache(ctx, userID, *created)
	return created.Clone(), nil
}

// UpdateStory изменяет историю на сервисе и заменяет ее копию в кэше.
func (e *Engine) UpdateStory(ctx context.Context, userID string, story models.Story) (models.Story, error) {
	if err := validateUserID(userID); err != nil {
		return models.Story{}, err
	}
	if err := story.Validate(); err != nil {
		return models.Story{}, err
	}
	if story.OwnerID == "" {
		story.OwnerID = userID
	}
	updated, err := e.gateway.UpdateStory(ctx, story)
	if err != nil {
		return models.Story{}, err
	}
	e.upsertCache(ctx, userID, *updated)
	return updated.Clone(), nil
}

// RateStory ставит оценку на сервисе и повторяет ее в кэшированной копии, если она есть.
func (e *Engine) RateStory(ctx context.Context, userID, storyID string, rating int) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := models.ValidateRating(rating); err != nil {
		return err
	}
	if err := e.gateway.RateStory(ctx, storyID, rating); err != nil {
		return err
	}

	cached, err := e.cache.GetByID(ctx, userID, storyID)
	if errors.Is(err, models.ErrNotFound) {
		e.logger.Debug("Rated story is not cached", zap.String("user_id", userID), zap.String("story_id", storyID))
		return nil
	}
	if err != nil {
		e.logger.Warn("Failed to read cached story after rating", zap.String("story_id", storyID), zap.Error(err))
		return nil
	}
	e.upsertCache(ctx, userID, cached.WithRating(rating))
	return nil
}

// DeleteStory удаляет историю на сервисе, затем из кэша.
func (e *Engine) DeleteStory(ctx context.Context, userID, storyID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := e.gateway.DeleteStory(ctx, storyID); err != nil {
		return err
	}
	if err := e.cache.Remove(ctx, userID, storyID); err != nil {
		e.logger.Error("Failed to remove deleted story from cache",
			zap.String("user_id", userID), zap.String("story_id", storyID), zap.Error(err))
	}
	return nil
}

// ApplyGenerated записывает результат генерации в кэш.
func (e *Engine) ApplyGenerated(ctx context.Context, userID string, story models.Story) error {
	if err := e.cache.Upsert(ctx, userID, story); err != nil {
		return fmt.Errorf("failed to cache generated story %s: %w", story.ID, err)
	}
	e.logger.Info("Generated story cached", zap.String("user_id", userID), zap.String("story_id", story.ID))
	return nil
}

// ClearUser удаляет кэш пользователя (выход из аккаунта).
func (e *Engine) ClearUser(ctx context.Context, userID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	e.refresh.Forget(userID)
	return e.cache.Clear(ctx, userID)
}

// CachedStory читает историю только из кэша.
func (e *Engine) CachedStory(ctx context.Context, userID, storyID string) (models.Story, error) {
	return e.cache.GetByID(ctx, userID, storyID)
}

// LastSyncedAt возвращает время последнего полного обновления.
func (e *Engine) LastSyncedAt(ctx context.Context, userID string) (time.Time, bool) {
	return e.cache.LastSyncedAt(ctx, userID)
}

// Online сообщает текущее состояние сети по монитору.
func (e *Engine) Online() bool { return e.online() }

func (e *Engine) online() bool {
	return e.connectivity == nil || e.connectivity.CurrentlyOnline()
}

// upsertCache применяет успешную удаленную запись к кэшу. Ошибка кэша только логируется:
// следующее обновление списка восстановит запись.
func (e *Engine) upsertCache(ctx context.Context, userID string, story models.Story) {
	if err := e.cache.Upsert(ctx, userID, story); err != nil {
		e.logger.Error("Failed to apply remote write to cache",
			zap.String("user_id", userID), zap.String("story_id", story.ID), zap.Error(err))
	}
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", models.ErrInvalidInput)
	}
	return nil
}

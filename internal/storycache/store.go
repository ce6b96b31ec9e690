// Package storycache реализует локальный кэш историй поверх сменных хранилищ
// (память, SQLite, Redis). Общая логика (сериализация, блокировки на пользователя,
// деградация при поврежденных записях) живет в Store, хранилища только читают и пишут записи.
package storycache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"novel-client/internal/clock"
	"novel-client/internal/interfaces"
	"novel-client/internal/models"

	"go.uber.org/zap"
)

// Record - сохраненная запись кэша одного пользователя.
type Record struct {
	Stories  []byte    // сериализованный JSON-массив историй
	SyncedAt time.Time // нулевое значение - полная синхронизация еще не выполнялась
}

// Backend - хранилище записей кэша. Реализации не обязаны быть потокобезопасными
// по одному пользователю: Store сериализует такие вызовы сам.
type Backend interface {
	Name() string
	// Load возвращает false, если записи для пользователя нет.
	Load(ctx context.Context, userID string) (Record, bool, error)
	Save(ctx context.Context, userID string, rec Record) error
	Delete(ctx context.Context, userID string) error
	Close() error
}

var _ interfaces.StoryCache = (*Store)(nil)

// Store реализует interfaces.StoryCache поверх Backend.
type Store struct {
	backend Backend
	locks   *keyedMutex
	clock   clock.Clock
	logger  *zap.Logger
}

// New создает кэш над backend. clk и logger могут быть nil.
func New(backend Backend, clk clock.Clock, logger *zap.Logger) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		locks:   newKeyedMutex(),
		clock:   clk,
		logger:  logger.Named("StoryCache").With(zap.String("backend", backend.Name())),
	}
}

// SaveAll заменяет список историй пользователя целиком и обновляет lastSyncedAt.
// Истории без ID пропускаются, при повторе ID побеждает последнее вхождение.
func (s *Store) SaveAll(ctx context.Context, userID string, stories []models.Story) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	clean := make([]models.Story, 0, len(stories))
	for _, story := range stories {
		if err := story.Validate(); err != nil {
			s.logger.Warn("Skipping invalid story in full refresh", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		clean = upsertInto(clean, normalizeOwner(story, userID))
	}

	if err := s.write(ctx, "save_all", userID, clean, s.clock.Now().UTC()); err != nil {
		return err
	}
	s.logger.Debug("Stories saved after refresh", zap.String("user_id", userID), zap.Int("count", len(clean)))
	return nil
}

// Upsert вставляет историю или заменяет существующую с тем же ID. lastSyncedAt не меняется.
func (s *Store) Upsert(ctx context.Context, userID string, story models.Story) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := story.Validate(); err != nil {
		return err
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	rec, _, err := s.backend.Load(ctx, userID)
	if err != nil {
		s.count("upsert", "error")
		return fmt.Errorf("failed to load cache record for upsert: %w", err)
	}
	stories := s.decode(userID, rec.Stories)
	stories = upsertInto(stories, normalizeOwner(story, userID))

	return s.write(ctx, "upsert", userID, stories, rec.SyncedAt)
}

// GetAll возвращает истории пользователя. Никогда не завершается ошибкой.
func (s *Store) GetAll(ctx context.Context, userID string) []models.Story {
	unlock := s.locks.Lock(userID)
	defer unlock()

	return s.readLocked(ctx, userID)
}

func (s *Store) readLocked(ctx context.Context, userID string) []models.Story {
	rec, ok, err := s.backend.Load(ctx, userID)
	if err != nil {
		s.count("get_all", "error")
		s.logger.Warn("Cache read failed, returning empty list", zap.String("user_id", userID), zap.Error(err))
		return []models.Story{}
	}
	if !ok {
		s.count("get_all", "miss")
		return []models.Story{}
	}
	s.count("get_all", "ok")
	return s.decode(userID, rec.Stories)
}

// GetByID возвращает models.ErrNotFound, если истории нет.
func (s *Store) GetByID(ctx context.Context, userID, storyID string) (models.Story, error) {
	for _, story := range s.GetAll(ctx, userID) {
		if story.ID == storyID {
			return story, nil
		}
	}
	return models.Story{}, fmt.Errorf("story %s: %w", storyID, models.ErrNotFound)
}

// Remove удаляет историю из кэша. Отсутствие истории ошибкой не считается.
func (s *Store) Remove(ctx context.Context, userID, storyID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	rec, ok, err := s.backend.Load(ctx, userID)
	if err != nil {
		s.count("remove", "error")
		return fmt.Errorf("failed to load cache record for remove: %w", err)
	}
	if !ok {
		return nil
	}
	stories := s.decode(userID, rec.Stories)
	kept := stories[:0]
	for _, story := range stories {
		if story.ID != storyID {
			kept = append(kept, story)
		}
	}
	return s.write(ctx, "remove", userID, kept, rec.SyncedAt)
}

// Clear удаляет запись пользователя целиком вместе с отметкой синхронизации.
func (s *Store) Clear(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.backend.Delete(ctx, userID); err != nil {
		s.count("clear", "error")
		return fmt.Errorf("failed to clear cache for user %s: %w", userID, err)
	}
	s.count("clear", "ok")
	s.logger.Info("Cache cleared", zap.String("user_id", userID))
	return nil
}

// LastSyncedAt возвращает время последней полной синхронизации.
func (s *Store) LastSyncedAt(ctx context.Context, userID string) (time.Time, bool) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	rec, ok, err := s.backend.Load(ctx, userID)
	if err != nil || !ok || rec.SyncedAt.IsZero() {
		return time.Time{}, false
	}
	return rec.SyncedAt, true
}

// Exists сообщает, есть ли у пользователя запись кэша (в том числе пустая).
func (s *Store) Exists(ctx context.Context, userID string) bool {
	unlock := s.locks.Lock(userID)
	defer unlock()

	_, ok, err := s.backend.Load(ctx, userID)
	return err == nil && ok
}

// Close закрывает хранилище.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) write(ctx context.Context, op, userID string, stories []models.Story, syncedAt time.Time) error {
	data, err := encodeStories(stories)
	if err != nil {
		s.count(op, "error")
		return err
	}
	if err := s.backend.Save(ctx, userID, Record{Stories: data, SyncedAt: syncedAt}); err != nil {
		s.count(op, "error")
		s.logger.Error("Cache write failed", zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to write cache record: %w", err)
	}
	s.count(op, "ok")
	return nil
}

func (s *Store) decode(userID string, data []byte) []models.Story {
	stories, corrupt := decodeStories(data)
	if corrupt > 0 {
		cacheCorruptRecords.WithLabelValues(s.backend.Name()).Add(float64(corrupt))
		s.logger.Warn("Skipped corrupt cached stories",
			zap.String("user_id", userID),
			zap.Int("corrupt", corrupt),
			zap.Int("recovered", len(stories)),
			zap.Error(models.ErrCacheCorruption),
		)
	}
	return stories
}

func (s *Store) count(op, result string) {
	cacheOperations.WithLabelValues(s.backend.Name(), op, result).Inc()
}

// upsertInto заменяет историю с тем же ID на месте или добавляет новую в конец.
func upsertInto(stories []models.Story, story models.Story) []models.Story {
	for i := range stories {
		if stories[i].ID == story.ID {
			stories[i] = story
			return stories
		}
	}
	return append(stories, story)
}

func normalizeOwner(story models.Story, userID string) models.Story {
	out := story.Clone()
	if out.OwnerID == "" {
		out.OwnerID = userID
	}
	return out
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", models.ErrInvalidInput)
	}
	return nil
}

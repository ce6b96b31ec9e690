package interfaces

import (
	"context"
	"time"

	"novel-client/internal/models"
)

// StoryCache - локальный кэш историй, ключом служит ID владельца.
// Единственный источник правды в офлайне.
//
// Операции чтения никогда не возвращают ошибку: поврежденные записи пропускаются,
// недоступное хранилище трактуется как пустой кэш.
//
//go:generate mockery --name StoryCache --output ./mocks --outpkg mocks --case=underscore
type StoryCache interface {
	// SaveAll полностью заменяет список историй пользователя и выставляет lastSyncedAt = now.
	SaveAll(ctx context.Context, userID string, stories []models.Story) error
	// Upsert вставляет или заменяет историю по ID, не трогая lastSyncedAt.
	Upsert(ctx context.Context, userID string, story models.Story) error
	// GetAll возвращает пустой срез, если записи нет.
	GetAll(ctx context.Context, userID string) []models.Story
	// GetByID возвращает models.ErrNotFound, если истории нет в кэше.
	GetByID(ctx context.Context, userID, storyID string) (models.Story, error)
	Remove(ctx context.Context, userID, storyID string) error
	// Clear удаляет все истории и отметку синхронизации (выход из аккаунта).
	Clear(ctx context.Context, userID string) error
	LastSyncedAt(ctx context.Context, userID string) (time.Time, bool)
	// Exists сообщает, создана ли запись кэша для пользователя (даже пустая).
	Exists(ctx context.Context, userID string) bool
	Close() error
}

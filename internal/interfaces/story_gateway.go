package interfaces

import (
	"context"

	"novel-client/internal/models"
)

// StoryGateway - граница с удаленным сервисом историй и генерации.
// Любой вызов может завершиться *models.TransientError (повторяемо) или
// *models.DefinitiveError (не повторяется). Политику повторов выбирает вызывающий код.
//
//go:generate mockery --name StoryGateway --output ./mocks --outpkg mocks --case=underscore
type StoryGateway interface {
	ListStories(ctx context.Context, userID string) ([]models.Story, error)
	GetStory(ctx context.Context, storyID string) (*models.Story, error)
	CreateStory(ctx context.Context, story models.Story) (*models.Story, error)
	UpdateStory(ctx context.Context, story models.Story) (*models.Story, error)
	DeleteStory(ctx context.Context, storyID string) error
	RateStory(ctx context.Context, storyID string, rating int) error

	// SubmitGeneration отправляет запрос и возвращает generationID, назначенный сервисом.
	SubmitGeneration(ctx context.Context, req models.GenerationRequest) (string, error)
	// PollGeneration возвращает models.ErrNotYetAvailable, пока результат не готов.
	PollGeneration(ctx context.Context, generationID string, attemptNumber int) (*models.Generation, error)
}

package interfaces

import (
	"context"

	"novel-client/internal/models"
)

// GenerationRepository хранит историю завершенных генераций.
//
//go:generate mockery --name GenerationRepository --output ./mocks --outpkg mocks --case=underscore
type GenerationRepository interface {
	// Save сохраняет запись; повторное сохранение того же GenerationID перезаписывает ее.
	Save(ctx context.Context, record models.GenerationRecord) error
	// GetByGenerationID возвращает models.ErrNotFound, если записи нет.
	GetByGenerationID(ctx context.Context, generationID string) (*models.GenerationRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.GenerationRecord, error)
}

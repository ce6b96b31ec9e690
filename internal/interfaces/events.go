package interfaces

import (
	"context"

	"novel-client/internal/models"
)

// GenerationEventPublisher уведомляет внешних подписчиков о завершении генерации.
type GenerationEventPublisher interface {
	PublishGenerationEvent(ctx context.Context, record models.GenerationRecord) error
}

package mocks

import (
	"context"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"

	"github.com/stretchr/testify/mock"
)

// GenerationEventPublisher is a mock type for the GenerationEventPublisher type
type GenerationEventPublisher struct {
	mock.Mock
}

// PublishGenerationEvent provides a mock function with given fields: ctx, record
func (_m *GenerationEventPublisher) PublishGenerationEvent(ctx context.Context, record models.GenerationRecord) error {
	ret := _m.Called(ctx, record)
	return ret.Error(0)
}

var _ interfaces.GenerationEventPublisher = (*GenerationEventPublisher)(nil)

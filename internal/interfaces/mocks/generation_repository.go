package mocks

import (
	"context"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"

	"github.com/stretchr/testify/mock"
)

// GenerationRepository is a mock type for the GenerationRepository type
type GenerationRepository struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, record
func (_m *GenerationRepository) Save(ctx context.Context, record models.GenerationRecord) error {
	ret := _m.Called(ctx, record)
	return ret.Error(0)
}

// GetByGenerationID provides a mock function with given fields: ctx, generationID
func (_m *GenerationRepository) GetByGenerationID(ctx context.Context, generationID string) (*models.GenerationRecord, error) {
	ret := _m.Called(ctx, generationID)

	var r0 *models.GenerationRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.GenerationRecord)
	}

	return r0, ret.Error(1)
}

// ListByUser provides a mock function with given fields: ctx, userID, limit
func (_m *GenerationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.GenerationRecord, error) {
	ret := _m.Called(ctx, userID, limit)

	var r0 []models.GenerationRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.GenerationRecord)
	}

	return r0, ret.Error(1)
}

var _ interfaces.GenerationRepository = (*GenerationRepository)(nil)

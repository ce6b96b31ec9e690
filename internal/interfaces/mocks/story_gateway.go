package mocks

import (
	"context"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"

	"github.com/stretchr/testify/mock"
)

// StoryGateway is a mock type for the StoryGateway type
type StoryGateway struct {
	mock.Mock
}

// ListStories provides a mock function with given fields: ctx, userID
func (_m *StoryGateway) ListStories(ctx context.Context, userID string) ([]models.Story, error) {
	ret := _m.Called(ctx, userID)

	var r0 []models.Story
	if rf, ok := ret.Get(0).(func(context.Context, string) []models.Story); ok {
		r0 = rf(ctx, userID)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.Story)
	}

	return r0, ret.Error(1)
}

// GetStory provides a mock function with given fields: ctx, storyID
func (_m *StoryGateway) GetStory(ctx context.Context, storyID string) (*models.Story, error) {
	ret := _m.Called(ctx, storyID)

	var r0 *models.Story
	if rf, ok := ret.Get(0).(func(context.Context, string) *models.Story); ok {
		r0 = rf(ctx, storyID)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Story)
	}

	return r0, ret.Error(1)
}

// CreateStory provides a mock function with given fields: ctx, story
func (_m *StoryGateway) CreateStory(ctx context.Context, story models.Story) (*models.Story, error) {
	ret := _m.Called(ctx, story)

	var r0 *models.Story
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Story)
	}

	return r0, ret.Error(1)
}

// UpdateStory provides a mock function with given fields: ctx, story
func (_m *StoryGateway) UpdateStory(ctx context.Context, story models.Story) (*models.Story, error) {
	ret := _m.Called(ctx, story)

	var r0 *models.Story
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Story)
	}

	return r0, ret.Error(1)
}

// DeleteStory provides a mock function with given fields: ctx, storyID
func (_m *StoryGateway) DeleteStory(ctx context.Context, storyID string) error {
	ret := _m.Called(ctx, storyID)
	return ret.Error(0)
}

// RateStory provides a mock function with given fields: ctx, storyID, rating
func (_m *StoryGateway) RateStory(ctx context.Context, storyID string, rating int) error {
	ret := _m.Called(ctx, storyID, rating)
	return ret.Error(0)
}

// SubmitGeneration provides a mock function with given fields: ctx, req
func (_m *StoryGateway) SubmitGeneration(ctx context.Context, req models.GenerationRequest) (string, error) {
	ret := _m.Called(ctx, req)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, models.GenerationRequest) string); ok {
		r0 = rf(ctx, req)
	} else {
		r0 = ret.String(0)
	}

	return r0, ret.Error(1)
}

// PollGeneration provides a mock function with given fields: ctx, generationID, attemptNumber
func (_m *StoryGateway) PollGeneration(ctx context.Context, generationID string, attemptNumber int) (*models.Generation, error) {
	ret := _m.Called(ctx, generationID, attemptNumber)

	var r0 *models.Generation
	if rf, ok := ret.Get(0).(func(context.Context, string, int) *models.Generation); ok {
		r0 = rf(ctx, generationID, attemptNumber)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Generation)
	}

	return r0, ret.Error(1)
}

// NewStoryGateway creates a new instance of StoryGateway. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewStoryGateway(t interface {
	mock.TestingT
	Cleanup(func())
}) *StoryGateway {
	m := &StoryGateway{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ interfaces.StoryGateway = (*StoryGateway)(nil)

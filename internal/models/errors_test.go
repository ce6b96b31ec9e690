package models_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"novel-client/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	cause := errors.New("connection reset")

	assert.True(t, models.IsTransient(models.NewTransientError("list", cause)))
	assert.True(t, models.IsTransient(fmt.Errorf("wrapped: %w", models.NewTransientError("list", cause))))
	assert.True(t, models.IsTransient(context.DeadlineExceeded))

	assert.False(t, models.IsTransient(nil))
	assert.False(t, models.IsTransient(context.Canceled))
	assert.False(t, models.IsTransient(models.NewDefinitiveError("get", 404, models.ErrNotFound)))
	assert.False(t, models.IsTransient(cause))
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	def := models.NewDefinitiveError("get", 404, models.ErrNotFound)
	assert.ErrorIs(t, def, models.ErrDefinitiveRemote)
	assert.ErrorIs(t, def, models.ErrNotFound)
	assert.NotErrorIs(t, def, models.ErrTransientNetwork)

	tr := models.NewTransientError("poll", context.DeadlineExceeded)
	assert.ErrorIs(t, tr, models.ErrTransientNetwork)
	assert.ErrorIs(t, tr, context.DeadlineExceeded)
	assert.Contains(t, tr.Error(), "poll")
}

func TestValidateRating(t *testing.T) {
	assert.NoError(t, models.ValidateRating(models.MinStoryRating))
	assert.NoError(t, models.ValidateRating(models.MaxStoryRating))
	assert.ErrorIs(t, models.ValidateRating(0), models.ErrInvalidRating)
	assert.ErrorIs(t, models.ValidateRating(6), models.ErrInvalidRating)
}

func TestParseStoryOrder(t *testing.T) {
	order, err := models.ParseStoryOrder("")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderCreatedDesc, order)

	order, err = models.ParseStoryOrder("TITLE_ASC")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderTitleAsc, order)

	_, err = models.ParseStoryOrder("random")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestStoryCloneIsDeep(t *testing.T) {
	rating := 3
	s := models.Story{ID: "s1", Rating: &rating, Content: []byte(`{"a":1}`)}
	c := s.Clone()
	*c.Rating = 5
	c.Content[0] = '['

	assert.Equal(t, 3, *s.Rating)
	assert.Equal(t, byte('{'), s.Content[0])
}

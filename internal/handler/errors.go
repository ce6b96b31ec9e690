package handler

import (
	"context"
	"errors"
	"net/http"

	"novel-client/internal/generation"
	"novel-client/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrHistoryDisabled возвращается, если хранилище истории генераций не настроено.
var ErrHistoryDisabled = errors.New("generation history is not configured")

// ErrorResponse - тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrInvalidRating):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConcurrentRequestRejected):
		return http.StatusConflict
	case errors.Is(err, models.ErrTransientNetwork), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrDefinitiveRemote):
		return http.StatusBadGateway
	case errors.Is(err, generation.ErrCoordinatorClosed), errors.Is(err, ErrHistoryDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// Клиент закрыл соединение.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleServiceError(c *gin.Context, err error) {
	status := statusForError(err)
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Unhandled internal error", zap.Error(err))
		c.AbortWithStatusJSON(status, ErrorResponse{Error: "an unexpected internal error occurred"})
		return
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

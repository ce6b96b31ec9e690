package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Application-wide standard errors
var (
	// Common
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input data")

	// Remote gateway
	ErrTransientNetwork = errors.New("transient network error")
	ErrDefinitiveRemote = errors.New("definitive remote error")
	ErrNotYetAvailable  = errors.New("generation result is not yet available")
	ErrUnauthorized     = errors.New("unauthorized")

	// Local cache
	ErrCacheCorruption = errors.New("cached record is corrupt")

	// Generation lifecycle
	ErrTimeout                   = errors.New("generation polling timed out")
	ErrRetriesExhausted          = errors.New("generation submission retries exhausted")
	ErrConcurrentRequestRejected = errors.New("generation for this request is already active")
	ErrAbandoned                 = errors.New("generation was abandoned")

	// Stories
	ErrInvalidRating = errors.New("invalid story rating")
)

// TransientError - сетевая ошибка, после которой операцию можно повторить.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient network error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransientNetwork }

// DefinitiveError - окончательный ответ удаленного сервиса (валидация, not found и т.п.).
// Координатор такие ошибки не повторяет.
type DefinitiveError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *DefinitiveError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: remote returned status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DefinitiveError) Unwrap() error { return e.Err }

func (e *DefinitiveError) Is(target error) bool { return target == ErrDefinitiveRemote }

// NewTransientError оборачивает err как повторяемую сетевую ошибку.
func NewTransientError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// NewDefinitiveError оборачивает err как окончательную ошибку удаленного сервиса.
func NewDefinitiveError(op string, statusCode int, err error) error {
	return &DefinitiveError{Op: op, StatusCode: statusCode, Err: err}
}

// IsTransient сообщает, можно ли повторить операцию после ошибки err.
// Таймауты контекста и сетевые ошибки считаются временными, отмена - нет.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransientNetwork) {
		return true
	}
	if errors.Is(err, ErrDefinitiveRemote) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

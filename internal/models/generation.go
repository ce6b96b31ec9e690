package models

import (
	"time"
)

// GenerationStatus - статус задачи генерации на стороне удаленного сервиса.
type GenerationStatus string

const (
	GenerationStatusPending   GenerationStatus = "pending"
	GenerationStatusSucceeded GenerationStatus = "succeeded"
	GenerationStatusFailed    GenerationStatus = "failed"
)

// IsTerminal сообщает, покинул ли статус состояние pending.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusSucceeded || s == GenerationStatusFailed
}

// Generation описывает одну попытку опроса задачи генерации.
// Пара (GenerationID, AttemptNumber) однозначно идентифицирует попытку.
// После выхода из pending значение не изменяется.
type Generation struct {
	GenerationID  string           `json:"generation_id" db:"generation_id"`
	AttemptNumber int              `json:"attempt_number" db:"attempt_number"`
	UserID        string           `json:"user_id" db:"user_id"`
	Status        GenerationStatus `json:"status" db:"status"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	ResultStoryID string           `json:"result_story_id,omitempty" db:"result_story_id"`
	Error         string           `json:"error,omitempty" db:"error"`

	// Story заполняется, если удаленный сервис вернул историю вместе с результатом опроса.
	Story *Story `json:"story,omitempty" db:"-"`
}

// GenerationRequest - запрос на генерацию персонализированной истории.
type GenerationRequest struct {
	UserID string `json:"user_id"`
	// RequestKey идентифицирует логический запрос. Повторная отправка с тем же ключом,
	// пока предыдущая генерация активна, отклоняется.
	RequestKey string            `json:"request_key"`
	Prompt     string            `json:"prompt"`
	Params     map[string]string `json:"params,omitempty"`
}

// FailureCause - причина перехода генерации в Failed.
type FailureCause string

const (
	FailureNone             FailureCause = ""
	FailureRemoteError      FailureCause = "remote-error"
	FailureTimeout          FailureCause = "timeout"
	FailureExhaustedRetries FailureCause = "exhausted-retries"
)

// GenerationRecord - завершенная генерация, сохраняемая в историю.
type GenerationRecord struct {
	GenerationID  string       `json:"generation_id" db:"generation_id"`
	RequestKey    string       `json:"request_key" db:"request_key"`
	UserID        string       `json:"user_id" db:"user_id"`
	State         string       `json:"state" db:"state"`
	Cause         FailureCause `json:"cause,omitempty" db:"cause"`
	Attempts      int          `json:"attempts" db:"attempts"`
	ResultStoryID string       `json:"result_story_id,omitempty" db:"result_story_id"`
	Error         string       `json:"error,omitempty" db:"error"`
	SubmittedAt   time.Time    `json:"submitted_at" db:"submitted_at"`
	CompletedAt   time.Time    `json:"completed_at" db:"completed_at"`
}

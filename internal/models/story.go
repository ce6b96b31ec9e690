package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Границы оценки истории (rating). Значение вне диапазона отклоняется до обращения к шлюзу.
const (
	MinStoryRating = 1
	MaxStoryRating = 5
)

// Story - сгенерированная персонализированная история.
// ID назначается удаленной системой и стабилен между синхронизациями.
type Story struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
	Body    string `json:"body,omitempty"`
	// Content хранит структурированное содержимое (главы, сцены и т.п.) как есть,
	// без интерпретации на клиенте.
	Content   json.RawMessage `json:"content,omitempty"`
	Rating    *int            `json:"rating,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Clone возвращает глубокую копию истории, чтобы кэш и вызывающий код не делили
// указатель Rating и буфер Content.
func (s Story) Clone() Story {
	out := s
	if s.Rating != nil {
		r := *s.Rating
		out.Rating = &r
	}
	if s.Content != nil {
		out.Content = append(json.RawMessage(nil), s.Content...)
	}
	return out
}

// WithRating возвращает копию истории с новой оценкой.
func (s Story) WithRating(rating int) Story {
	out := s.Clone()
	out.Rating = &rating
	return out
}

// Validate проверяет минимальные требования к истории перед записью в кэш.
// Оценка не проверяется: кэш хранит то, что вернул сервис.
func (s Story) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: story id is required", ErrInvalidInput)
	}
	return nil
}

// ValidateRating проверяет оценку, которую ставит пользователь.
func ValidateRating(rating int) error {
	if rating < MinStoryRating || rating > MaxStoryRating {
		return fmt.Errorf("%w: %d (allowed %d..%d)", ErrInvalidRating, rating, MinStoryRating, MaxStoryRating)
	}
	return nil
}

// StoryOrder задает порядок канонического списка историй.
type StoryOrder string

const (
	OrderCreatedDesc StoryOrder = "created_desc" // по умолчанию
	OrderCreatedAsc  StoryOrder = "created_asc"
	OrderTitleAsc    StoryOrder = "title_asc"
)

// ParseStoryOrder преобразует строку из запроса в StoryOrder. Пустая строка - порядок по умолчанию.
func ParseStoryOrder(s string) (StoryOrder, error) {
	switch StoryOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderCreatedDesc:
		return OrderCreatedDesc, nil
	case OrderCreatedAsc:
		return OrderCreatedAsc, nil
	case OrderTitleAsc:
		return OrderTitleAsc, nil
	default:
		return "", fmt.Errorf("%w: unknown story order %q", ErrInvalidInput, s)
	}
}

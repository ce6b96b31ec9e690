// Package messaging публикует события о завершенных генерациях в RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	// DefaultGenerationEventsExchange - fanout exchange для событий генерации.
	DefaultGenerationEventsExchange = "storysync.generation.events"
	generationEventsExchangeType    = "fanout"

	generationEventType = "generation.finished"
)

// GenerationEvent - тело сообщения о завершенной генерации.
type GenerationEvent struct {
	Type          string              `json:"type"`
	GenerationID  string              `json:"generation_id,omitempty"`
	RequestKey    string              `json:"request_key"`
	UserID        string              `json:"user_id"`
	State         string              `json:"state"`
	Cause         models.FailureCause `json:"cause,omitempty"`
	Attempts      int                 `json:"attempts"`
	ResultStoryID string              `json:"result_story_id,omitempty"`
	Error         string              `json:"error,omitempty"`
	CompletedAt   time.Time           `json:"completed_at"`
}

func newGenerationEvent(record models.GenerationRecord) GenerationEvent {
	return GenerationEvent{
		Type:          generationEventType,
		GenerationID:  record.GenerationID,
		RequestKey:    record.RequestKey,
		UserID:        record.UserID,
		State:         record.State,
		Cause:         record.Cause,
		Attempts:      record.Attempts,
		ResultStoryID: record.ResultStoryID,
		Error:         record.Error,
		CompletedAt:   record.CompletedAt,
	}
}

// Channel - часть *amqp.Channel, нужная издателю.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ interfaces.GenerationEventPublisher = (*GenerationEventPublisher)(nil)

// GenerationEventPublisher отправляет GenerationEvent в fanout exchange.
type GenerationEventPublisher struct {
	ch       Channel
	exchange string
	log      zerolog.Logger
	now      func() time.Time
}

// NewGenerationEventPublisher объявляет durable fanout exchange и возвращает издателя.
// Пустое имя exchange заменяется DefaultGenerationEventsExchange.
func NewGenerationEventPublisher(ch Channel, exchange string, log zerolog.Logger) (*GenerationEventPublisher, error) {
	if ch == nil {
		return nil, errors.New("rabbitmq channel is nil")
	}
	if exchange == "" {
		exchange = DefaultGenerationEventsExchange
	}
	err := ch.ExchangeDeclare(
		exchange,
		generationEventsExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		log.Error().Err(err).Str("exchange", exchange).Msg("Failed to declare generation events exchange")
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchange, err)
	}

	log = log.With().Str("component", "GenerationEventPublisher").Str("exchange", exchange).Logger()
	log.Info().Msg("Generation events exchange declared")
	return &GenerationEventPublisher{ch: ch, exchange: exchange, log: log, now: time.Now}, nil
}

// Dial открывает соединение и канал RabbitMQ по URL. Закрывать нужно оба.
func Dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return conn, ch, nil
}

func (p *GenerationEventPublisher) PublishGenerationEvent(ctx context.Context, record models.GenerationRecord) error {
	body, err := json.Marshal(newGenerationEvent(record))
	if err != nil {
		return fmt.Errorf("failed to marshal generation event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    record.RequestKey,
		Type:         generationEventType,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, "", false, false, msg); err != nil {
		p.log.Error().Err(err).
			Str("request_key", record.RequestKey).
			Str("generation_id", record.GenerationID).
			Msg("Failed to publish generation event")
		return fmt.Errorf("failed to publish generation event: %w", err)
	}

	p.log.Debug().
		Str("request_key", record.RequestKey).
		Str("state", record.State).
		Msg("Generation event published")
	return nil
}

// Close закрывает канал.
func (p *GenerationEventPublisher) Close() error {
	return p.ch.Close()
}

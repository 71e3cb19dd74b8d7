package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

// Topics по умолчанию.
const (
	TopicOrderEvents     = "lessonbook.order.events"
	TopicDeadLetterQueue = "lessonbook.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope - формат сообщения в topic событий заказов.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение. Невалидный JSON в payload
// передаётся строкой, чтобы конверт оставался валидным JSON.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	} else if !json.Valid(payload) {
		quoted, _ := json.Marshal(string(msg.Payload))
		payload = quoted
	}

	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

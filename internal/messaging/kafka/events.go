package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "shop.order.events"
	TopicNotifications   = "shop.notifications"
	TopicDeadLetterQueue = "shop.dlq" // Dead Letter Queue для сообщений outbox, исчерпавших retry
)

// Envelope — обёртка outbox-сообщения, которая уходит в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   time.Now().UTC(),
	}
}

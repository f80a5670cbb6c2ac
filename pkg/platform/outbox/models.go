// Package outbox implements the transactional outbox: business writes and
// the messages announcing them commit together, and a worker publishes the
// pending rows to Kafka afterwards.
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one pending message.
type Entry struct {
	ID            uuid.UUID
	AggregateType string // "envelope", "event"
	AggregateID   string // message id, event id
	EventType     string
	Topic         string
	Payload       []byte
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil while pending
}

func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

func NewEntry(topic, aggregateType, aggregateID, eventType string, payload []byte, now time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     now,
	}
}

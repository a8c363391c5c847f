package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// Message is an encoded bus envelope waiting to be relayed to the broker.
type Message struct {
	ID               int64
	EventID          uuid.UUID
	RoutingKey       string
	Payload          json.RawMessage
	CorrelationID    string
	CreatedAt        time.Time
	PublishedAt      *time.Time
	NextRetryAt      *time.Time
	RetryCount       int
	LastError        *string
	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// NewMessage wraps an encoded envelope. The event id and correlation id are
// read from the envelope; an envelope without an event id gets a fresh one.
func NewMessage(routingKey string, payload []byte, now time.Time) (*Message, error) {
	var envelope eventbus.ConsumedEvent
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope for %s: %w", routingKey, err)
	}
	eventID := envelope.EventID
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}
	createdAt := envelope.OccurredAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &Message{
		EventID:       eventID,
		RoutingKey:    routingKey,
		Payload:       payload,
		CorrelationID: envelope.Metadata.CorrelationID,
		CreatedAt:     createdAt.UTC(),
	}, nil
}

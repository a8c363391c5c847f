package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/cadence/internal/shared/domain"
)

// AggregateType is the aggregate name carried on communication events.
const AggregateType = "Communication"

// Routing keys for communication lifecycle events.
const (
	RoutingKeyScheduled       = "communications.communication.scheduled"
	RoutingKeyUpdated         = "communications.communication.updated"
	RoutingKeyCanceled        = "communications.communication.canceled"
	RoutingKeyDue             = "communications.communication.due"
	RoutingKeyExecutionFailed = "communications.communication.execution_failed"
)

// Routing keys for signals that trigger immediate communications.
const (
	RoutingKeyCrisisDetected    = "signals.crisis.detected"
	RoutingKeyRelationshipStale = "signals.relationship.stale"
)

// EventPayload is the body of every communication event.
type EventPayload struct {
	Communication *Communication `json:"communication"`
	Error         string         `json:"error,omitempty"`
}

// CommunicationEvent is emitted on every engine state transition.
type CommunicationEvent struct {
	sharedDomain.BaseEvent
	payload EventPayload
}

// Payload returns the event body.
func (e CommunicationEvent) Payload() EventPayload {
	return e.payload
}

func newCommunicationEvent(routingKey string, c *Communication, reason string, at time.Time) CommunicationEvent {
	return CommunicationEvent{
		BaseEvent: sharedDomain.NewBaseEvent(c.ID, AggregateType, routingKey, at),
		payload: EventPayload{
			Communication: c.Clone(),
			Error:         reason,
		},
	}
}

// NewScheduledEvent is emitted after a successful Submit.
func NewScheduledEvent(c *Communication, at time.Time) CommunicationEvent {
	return newCommunicationEvent(RoutingKeyScheduled, c, "", at)
}

// NewUpdatedEvent is emitted after a reschedule or a retry.
func NewUpdatedEvent(c *Communication, at time.Time) CommunicationEvent {
	return newCommunicationEvent(RoutingKeyUpdated, c, "", at)
}

// NewCanceledEvent is emitted when a live entry is dropped.
func NewCanceledEvent(c *Communication, at time.Time) CommunicationEvent {
	return newCommunicationEvent(RoutingKeyCanceled, c, "", at)
}

// NewDueEvent is emitted when an entry's timer elapses.
func NewDueEvent(c *Communication, at time.Time) CommunicationEvent {
	return newCommunicationEvent(RoutingKeyDue, c, "", at)
}

// NewExecutionFailedEvent is emitted when retries are exhausted.
func NewExecutionFailedEvent(c *Communication, reason string, at time.Time) CommunicationEvent {
	return newCommunicationEvent(RoutingKeyExecutionFailed, c, reason, at)
}

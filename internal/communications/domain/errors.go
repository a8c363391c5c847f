package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequest     = errors.New("invalid communication request")
	ErrConflict           = errors.New("communication conflicts with a scheduled entry")
	ErrNotFound           = errors.New("communication not found")
	ErrChannelUnavailable = errors.New("channel unavailable")
)

// ConflictError is returned when a request collides with a live entry.
type ConflictError struct {
	ExistingID   uuid.UUID
	Recipient    string
	Channel      Channel
	ScheduledFor time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("communication to %s via %s conflicts with %s scheduled for %s",
		e.Recipient, e.Channel, e.ExistingID, e.ScheduledFor.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NotFoundError is returned when an id is not present in the set an operation targets.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("communication %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DeliveryError wraps a platform failure for a channel.
type DeliveryError struct {
	Channel Channel
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ChannelUnavailableError is returned when a channel cannot accept sends.
type ChannelUnavailableError struct {
	Channel Channel
	Reason  string
}

func (e *ChannelUnavailableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("channel %s unavailable", e.Channel)
	}
	return fmt.Sprintf("channel %s unavailable: %s", e.Channel, e.Reason)
}

func (e *ChannelUnavailableError) Is(target error) bool {
	return target == ErrChannelUnavailable
}

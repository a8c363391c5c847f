package commands

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RescheduleCommunicationCommand moves a live communication to a new requested time.
type RescheduleCommunicationCommand struct {
	ID            uuid.UUID
	RequestedTime time.Time
}

// Validate checks the command.
func (c RescheduleCommunicationCommand) Validate() error {
	if c.ID == uuid.Nil {
		return errors.New("communication id is required")
	}
	if c.RequestedTime.IsZero() {
		return errors.New("requested time is required")
	}
	return nil
}

// RescheduleCommunicationResult contains the new slot chosen by the rule pipeline.
type RescheduleCommunicationResult struct {
	ID           uuid.UUID
	ScheduledFor time.Time
}

// RescheduleCommunicationHandler handles the RescheduleCommunicationCommand.
type RescheduleCommunicationHandler struct {
	scheduler Scheduler
}

// NewRescheduleCommunicationHandler creates a new RescheduleCommunicationHandler.
func NewRescheduleCommunicationHandler(scheduler Scheduler) *RescheduleCommunicationHandler {
	return &RescheduleCommunicationHandler{scheduler: scheduler}
}

// Handle executes the RescheduleCommunicationCommand.
func (h *RescheduleCommunicationHandler) Handle(ctx context.Context, cmd RescheduleCommunicationCommand) (*RescheduleCommunicationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if err := h.scheduler.Reschedule(ctx, cmd.ID, cmd.RequestedTime); err != nil {
		return nil, err
	}

	result := &RescheduleCommunicationResult{ID: cmd.ID}
	if c, ok := h.scheduler.Get(cmd.ID); ok {
		result.ScheduledFor = c.ScheduledFor
	}
	return result, nil
}

package commands

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// CancelCommunicationCommand drops a live communication.
type CancelCommunicationCommand struct {
	ID uuid.UUID
}

// CancelCommunicationHandler handles the CancelCommunicationCommand.
type CancelCommunicationHandler struct {
	scheduler Scheduler
}

// NewCancelCommunicationHandler creates a new CancelCommunicationHandler.
func NewCancelCommunicationHandler(scheduler Scheduler) *CancelCommunicationHandler {
	return &CancelCommunicationHandler{scheduler: scheduler}
}

// Handle executes the CancelCommunicationCommand.
func (h *CancelCommunicationHandler) Handle(ctx context.Context, cmd CancelCommunicationCommand) error {
	if cmd.ID == uuid.Nil {
		return errors.New("communication id is required")
	}
	return h.scheduler.Cancel(ctx, cmd.ID)
}

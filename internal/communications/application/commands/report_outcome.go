package commands

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
)

// ReportOutcomeCommand records the result of an external delivery attempt.
type ReportOutcomeCommand struct {
	ID         uuid.UUID
	Success    bool
	ExternalID string
	Error      string
}

// Validate checks the command.
func (c ReportOutcomeCommand) Validate() error {
	if c.ID == uuid.Nil {
		return errors.New("communication id is required")
	}
	if !c.Success && c.Error == "" {
		return errors.New("failed outcomes need an error message")
	}
	return nil
}

// ReportOutcomeHandler handles the ReportOutcomeCommand.
type ReportOutcomeHandler struct {
	scheduler Scheduler
}

// NewReportOutcomeHandler creates a new ReportOutcomeHandler.
func NewReportOutcomeHandler(scheduler Scheduler) *ReportOutcomeHandler {
	return &ReportOutcomeHandler{scheduler: scheduler}
}

// Handle executes the ReportOutcomeCommand.
func (h *ReportOutcomeHandler) Handle(ctx context.Context, cmd ReportOutcomeCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	outcome := domain.Outcome{Success: cmd.Success, ExternalID: cmd.ExternalID, Error: cmd.Error}
	return h.scheduler.ReportOutcome(ctx, cmd.ID, outcome)
}

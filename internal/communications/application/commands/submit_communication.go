package commands

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
)

// SubmitCommunicationCommand contains the data needed to schedule a communication.
type SubmitCommunicationCommand struct {
	Recipient       string
	Channel         string
	Type            string
	Priority        string
	Message         string
	Reasoning       string
	RequestedTime   time.Time
	Context         map[string]any
	ReplaceExisting bool
}

// SubmitCommunicationResult contains the scheduled entry.
type SubmitCommunicationResult struct {
	ID           uuid.UUID
	ScheduledFor time.Time
}

// Validate checks the command and converts it into a domain request.
func (c SubmitCommunicationCommand) Validate() (domain.Request, error) {
	if c.Recipient == "" {
		return domain.Request{}, errors.New("recipient is required")
	}
	channel, err := domain.ParseChannel(c.Channel)
	if err != nil {
		return domain.Request{}, err
	}
	typ := domain.TypeManual
	if c.Type != "" {
		if typ, err = domain.ParseType(c.Type); err != nil {
			return domain.Request{}, err
		}
	}
	priority := domain.PriorityMedium
	if c.Priority != "" {
		if priority, err = domain.ParsePriority(c.Priority); err != nil {
			return domain.Request{}, err
		}
	}
	return domain.Request{
		Recipient:     c.Recipient,
		Channel:       channel,
		Type:          typ,
		Priority:      priority,
		Message:       c.Message,
		Reasoning:     c.Reasoning,
		RequestedTime: c.RequestedTime,
		Context:       c.Context,
	}, nil
}

// SubmitCommunicationHandler handles the SubmitCommunicationCommand.
type SubmitCommunicationHandler struct {
	scheduler Scheduler
}

// NewSubmitCommunicationHandler creates a new SubmitCommunicationHandler.
func NewSubmitCommunicationHandler(scheduler Scheduler) *SubmitCommunicationHandler {
	return &SubmitCommunicationHandler{scheduler: scheduler}
}

// Handle executes the SubmitCommunicationCommand.
func (h *SubmitCommunicationHandler) Handle(ctx context.Context, cmd SubmitCommunicationCommand) (*SubmitCommunicationResult, error) {
	req, err := cmd.Validate()
	if err != nil {
		return nil, err
	}

	id, err := h.scheduler.Submit(ctx, req, domain.SubmitOptions{ReplaceExisting: cmd.ReplaceExisting})
	if err != nil {
		return nil, err
	}

	result := &SubmitCommunicationResult{ID: id}
	if c, ok := h.scheduler.Get(id); ok {
		result.ScheduledFor = c.ScheduledFor
	}
	return result, nil
}

package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/communications/application/commands"
	"github.com/felixgeelhaar/cadence/internal/communications/application/queries"
	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type submitInput struct {
	Recipient       string         `json:"recipient" jsonschema:"required"`
	Channel         string         `json:"channel" jsonschema:"required"`
	Type            string         `json:"type,omitempty"`
	Priority        string         `json:"priority,omitempty"`
	Message         string         `json:"message,omitempty"`
	Reasoning       string         `json:"reasoning,omitempty"`
	RequestedTime   string         `json:"requested_time,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
	ReplaceExisting bool           `json:"replace_existing,omitempty"`
}

type listInput struct {
	Recipient       string `json:"recipient,omitempty"`
	Channel         string `json:"channel,omitempty"`
	IncludeInFlight bool   `json:"include_in_flight,omitempty"`
}

type historyInput struct {
	Recipient  string `json:"recipient,omitempty"`
	Status     string `json:"status,omitempty"`
	SinceHours int    `json:"since_hours,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type idInput struct {
	ID string `json:"id" jsonschema:"required"`
}

type rescheduleInput struct {
	ID            string `json:"id" jsonschema:"required"`
	RequestedTime string `json:"requested_time" jsonschema:"required"`
}

type signalInput struct {
	Kind      string `json:"kind" jsonschema:"required"`
	ContactID string `json:"contact_id" jsonschema:"required"`
	Channel   string `json:"channel,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// submitOutput reports either the scheduled slot or the entry it collided with.
type submitOutput struct {
	ID           string `json:"id,omitempty"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
	Conflict     bool   `json:"conflict,omitempty"`
	ExistingID   string `json:"existing_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

func registerCommsTools(srv *mcp.Server, deps Dependencies) error {
	app := deps.App

	srv.Tool("comms.submit").
		Description("Schedule a communication; the slot is adjusted by priority, availability, channel, spacing and business-day rules").
		Handler(func(ctx context.Context, input submitInput) (*submitOutput, error) {
			return submitTool(ctx, app, input)
		})

	srv.Tool("comms.list").
		Description("List pending communications, earliest first").
		Handler(func(ctx context.Context, input listInput) ([]queries.CommunicationDTO, error) {
			if app == nil || app.ListLiveHandler == nil {
				return nil, errors.New("listing requires the scheduling engine")
			}
			return app.ListLiveHandler.Handle(ctx, queries.ListLiveQuery{
				Recipient:       input.Recipient,
				Channel:         input.Channel,
				IncludeInFlight: input.IncludeInFlight,
			})
		})

	srv.Tool("comms.history").
		Description("List delivered and failed communications, newest first").
		Handler(func(ctx context.Context, input historyInput) ([]queries.CommunicationDTO, error) {
			if app == nil || app.ListHistoryHandler == nil {
				return nil, errors.New("history requires database connection")
			}
			limit := input.Limit
			if limit <= 0 {
				limit = 50
			}
			return app.ListHistoryHandler.Handle(ctx, queries.ListHistoryQuery{
				Recipient:  input.Recipient,
				Status:     input.Status,
				SinceHours: input.SinceHours,
				Limit:      limit,
			})
		})

	srv.Tool("comms.get").
		Description("Get one communication by id").
		Handler(func(ctx context.Context, input idInput) (*queries.CommunicationDTO, error) {
			if app == nil || app.GetHandler == nil {
				return nil, errors.New("lookup requires the scheduling engine")
			}
			id, err := parseUUID(input.ID)
			if err != nil {
				return nil, err
			}
			return app.GetHandler.Handle(ctx, queries.GetCommunicationQuery{ID: id})
		})

	srv.Tool("comms.reschedule").
		Description("Move a pending communication to a new requested time").
		Handler(func(ctx context.Context, input rescheduleInput) (*commands.RescheduleCommunicationResult, error) {
			if app == nil || app.RescheduleHandler == nil {
				return nil, errors.New("reschedule requires the scheduling engine")
			}
			id, err := parseUUID(input.ID)
			if err != nil {
				return nil, err
			}
			requested, err := parseOptionalTime(input.RequestedTime)
			if err != nil {
				return nil, err
			}
			return app.RescheduleHandler.Handle(ctx, commands.RescheduleCommunicationCommand{
				ID:            id,
				RequestedTime: requested,
			})
		})

	srv.Tool("comms.cancel").
		Description("Cancel a pending communication").
		Handler(func(ctx context.Context, input idInput) (map[string]any, error) {
			if app == nil || app.CancelHandler == nil {
				return nil, errors.New("cancel requires the scheduling engine")
			}
			id, err := parseUUID(input.ID)
			if err != nil {
				return nil, err
			}
			if err := app.CancelHandler.Handle(ctx, commands.CancelCommunicationCommand{ID: id}); err != nil {
				return nil, err
			}
			return map[string]any{"id": id.String(), "status": string(domain.StatusCanceled)}, nil
		})

	srv.Tool("comms.channels").
		Description("Delivery channel connectivity").
		Handler(func(ctx context.Context, input struct{}) ([]queries.ChannelStatusDTO, error) {
			if app == nil || app.ChannelStatusHandler == nil {
				return nil, errors.New("channel status requires the dispatcher")
			}
			return app.ChannelStatusHandler.Handle(ctx)
		})

	srv.Tool("comms.signal").
		Description("Raise a crisis or relationship_stale trigger for a contact").
		Handler(func(ctx context.Context, input signalInput) (map[string]any, error) {
			return signalTool(ctx, app, input)
		})

	return nil
}

// submitTool reports conflicts as data so the caller can decide to replace.
func submitTool(ctx context.Context, app *cli.App, input submitInput) (*submitOutput, error) {
	if app == nil || app.SubmitHandler == nil {
		return nil, errors.New("submit requires the scheduling engine")
	}
	requested, err := parseOptionalTime(input.RequestedTime)
	if err != nil {
		return nil, err
	}

	result, err := app.SubmitHandler.Handle(ctx, commands.SubmitCommunicationCommand{
		Recipient:       input.Recipient,
		Channel:         input.Channel,
		Type:            input.Type,
		Priority:        input.Priority,
		Message:         input.Message,
		Reasoning:       input.Reasoning,
		RequestedTime:   requested,
		Context:         input.Context,
		ReplaceExisting: input.ReplaceExisting,
	})
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return &submitOutput{
				Conflict:   true,
				ExistingID: conflict.ExistingID.String(),
				Error:      conflict.Error(),
			}, nil
		}
		return nil, err
	}
	return &submitOutput{
		ID:           result.ID.String(),
		ScheduledFor: result.ScheduledFor.Format(time.RFC3339),
	}, nil
}

func signalTool(ctx context.Context, app *cli.App, input signalInput) (map[string]any, error) {
	if app == nil || app.Signals == nil {
		return nil, errors.New("signals require the orchestration loop")
	}
	sig := domain.Signal{
		Kind:       domain.SignalKind(input.Kind),
		ContactID:  input.ContactID,
		Summary:    input.Summary,
		DetectedAt: time.Now(),
	}
	if input.Channel != "" {
		channel, err := domain.ParseChannel(input.Channel)
		if err != nil {
			return nil, err
		}
		sig.Channel = channel
	}
	id, err := app.Signals.HandleSignal(ctx, sig)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": id.String(), "signal": input.Kind}, nil
}

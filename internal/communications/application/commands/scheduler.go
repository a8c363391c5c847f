package commands

import (
	"context"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
)

// Scheduler is the part of the scheduling engine the command handlers drive.
type Scheduler interface {
	Submit(ctx context.Context, req domain.Request, opts domain.SubmitOptions) (uuid.UUID, error)
	Reschedule(ctx context.Context, id uuid.UUID, requested time.Time) error
	Cancel(ctx context.Context, id uuid.UUID) error
	ReportOutcome(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error
	Get(id uuid.UUID) (*domain.Communication, bool)
}

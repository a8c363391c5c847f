package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
)

// Scheduler is the part of the scheduling engine the loop drives.
type Scheduler interface {
	Submit(ctx context.Context, req domain.Request, opts domain.SubmitOptions) (uuid.UUID, error)
	ReportOutcome(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error
	IsInFlight(id uuid.UUID) bool
	Live() []*domain.Communication
}

// HistorySource returns communications completed within the last windowHours.
type HistorySource interface {
	RecentCommunications(ctx context.Context, windowHours int) ([]*domain.Communication, error)
}

// ContactDirectory looks up contacts.
type ContactDirectory interface {
	ContactsNeedingMaintenance(ctx context.Context) ([]domain.Contact, error)
	Contact(ctx context.Context, id string) (domain.Contact, error)
}

// PreferenceStore supplies the user's communication preferences.
type PreferenceStore interface {
	CommunicationPreferences(ctx context.Context) (domain.Preferences, error)
}

// Deliverer sends a communication. Send never returns an error.
type Deliverer interface {
	Send(ctx context.Context, c *domain.Communication) domain.Outcome
	GetChannelStatus() map[domain.Channel]bool
}

// ChannelConnector is implemented by deliverers that hold platform connections.
type ChannelConnector interface {
	Connect(ctx context.Context) error
	Close() error
}

// SignalSource polls for externally detected conditions.
type SignalSource interface {
	Signals(ctx context.Context) ([]domain.Signal, error)
}

// OpportunityFinder proposes communications for a snapshot.
type OpportunityFinder interface {
	Identify(ctx context.Context, snapshot Snapshot) ([]domain.Request, error)
}

// Learner updates models from a snapshot after each tick.
type Learner interface {
	Learn(ctx context.Context, snapshot Snapshot) error
}

// Notifier surfaces communications that exhausted their retries.
type Notifier interface {
	NotifyFailure(ctx context.Context, c *domain.Communication, reason string)
}

// ContactRecorder stamps the last successful contact with a recipient.
type ContactRecorder interface {
	RecordContact(ctx context.Context, recipient string, at time.Time) error
}

// LogNotifier writes terminal failures to the log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) NotifyFailure(ctx context.Context, c *domain.Communication, reason string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("communication failed permanently",
		"communication_id", c.ID,
		"recipient", c.Recipient,
		"channel", c.Channel,
		"retry_count", c.RetryCount,
		"error", reason,
	)
}

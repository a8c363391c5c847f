package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database"
)

// Repository defines the interface for outbox persistence.
type Repository interface {
	// Save stores a new outbox message and sets its ID.
	Save(ctx context.Context, msg *Message) error

	// GetUnpublished retrieves messages that are neither published nor
	// dead-lettered and whose retry time has passed, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	// MarkPublished marks a message as successfully published.
	MarkPublished(ctx context.Context, id int64) error

	// MarkFailed records a publish failure with error message.
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error

	// MarkDead marks a message as dead-lettered.
	MarkDead(ctx context.Context, id int64, reason string) error

	// DeleteOld removes published messages older than the retention period.
	DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NewRepository returns the outbox repository for the connection's driver.
func NewRepository(conn database.Connection) (Repository, error) {
	switch conn.Driver() {
	case database.DriverSQLite:
		return NewSQLiteRepository(conn), nil
	case database.DriverPostgres:
		return NewPostgresRepository(conn), nil
	default:
		return nil, fmt.Errorf("no outbox repository for driver %s", conn.Driver())
	}
}

const outboxColumns = `id, event_id, routing_key, payload, correlation_id, created_at,
	published_at, next_retry_at, retry_count, last_error, dead_lettered_at, dead_letter_reason`

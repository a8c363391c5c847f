package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// PostgresHistoryRepository implements domain.HistoryRepository on PostgreSQL.
type PostgresHistoryRepository struct {
	conn database.Connection
}

// NewPostgresHistoryRepository creates a PostgreSQL history repository.
func NewPostgresHistoryRepository(conn database.Connection) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{conn: conn}
}

// Append inserts a terminal communication, replacing an earlier row with the same id.
func (r *PostgresHistoryRepository) Append(ctx context.Context, c *domain.Communication) error {
	ctxJSON, err := encodeContext(c.Context)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, `INSERT INTO communication_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			executed_at = EXCLUDED.executed_at,
			completed_at = EXCLUDED.completed_at,
			retry_count = EXCLUDED.retry_count,
			last_error = EXCLUDED.last_error,
			external_id = EXCLUDED.external_id`,
		c.ID,
		c.Recipient,
		string(c.Channel),
		string(c.Type),
		string(c.Priority),
		c.Message,
		c.Reasoning,
		ctxJSON,
		string(c.Status),
		c.RequestedTime.UTC(),
		c.ScheduledFor.UTC(),
		c.CreatedAt.UTC(),
		c.ExecutedAt,
		completedAt(c).UTC(),
		c.RetryCount,
		c.LastError,
		c.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("append history %s: %w", c.ID, err)
	}
	return nil
}

// FindByID returns the history entry with the given id.
func (r *PostgresHistoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Communication, error) {
	row := r.conn.QueryRow(ctx,
		"SELECT "+historyColumns+" FROM communication_history WHERE id = $1", id)
	c, err := scanPostgres(row)
	if database.IsNoRows(err) {
		return nil, &domain.NotFoundError{ID: id}
	}
	return c, err
}

// List returns matching entries, most recently completed first.
func (r *PostgresHistoryRepository) List(ctx context.Context, filter domain.HistoryFilter) ([]*domain.Communication, error) {
	query, args := historyQuery(filter, filter.Since.UTC())
	rows, err := r.conn.Query(ctx, database.DriverPostgres.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return collect(rows, scanPostgres)
}

func scanPostgres(row database.Row) (*domain.Communication, error) {
	var (
		channel, typ, priority, status string
		ctxJSON                        []byte
		executed                       *time.Time
		completed                      time.Time
		c                              domain.Communication
	)
	err := row.Scan(
		&c.ID, &c.Recipient, &channel, &typ, &priority, &c.Message, &c.Reasoning, &ctxJSON,
		&status, &c.RequestedTime, &c.ScheduledFor, &c.CreatedAt, &executed, &completed,
		&c.RetryCount, &c.LastError, &c.ExternalID,
	)
	if err != nil {
		return nil, err
	}

	c.Channel = domain.Channel(channel)
	c.Type = domain.Type(typ)
	c.Priority = domain.Priority(priority)
	c.Status = domain.Status(status)
	if c.Context, err = decodeContext(ctxJSON); err != nil {
		return nil, err
	}
	c.ExecutedAt = executed
	c.CompletedAt = &completed
	c.Dependencies = []uuid.UUID{}
	return &c, nil
}

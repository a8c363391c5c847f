package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLiteHistoryRepository implements domain.HistoryRepository on SQLite.
// Times are stored as fixed-width RFC 3339 text in UTC.
type SQLiteHistoryRepository struct {
	conn database.Connection
}

// NewSQLiteHistoryRepository creates a SQLite history repository.
func NewSQLiteHistoryRepository(conn database.Connection) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{conn: conn}
}

// Append inserts a terminal communication, replacing an earlier row with the same id.
func (r *SQLiteHistoryRepository) Append(ctx context.Context, c *domain.Communication) error {
	ctxJSON, err := encodeContext(c.Context)
	if err != nil {
		return err
	}

	var executedAt sql.NullString
	if c.ExecutedAt != nil {
		executedAt = sql.NullString{String: formatTime(*c.ExecutedAt), Valid: true}
	}

	_, err = r.conn.Exec(ctx, `INSERT OR REPLACE INTO communication_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(),
		c.Recipient,
		string(c.Channel),
		string(c.Type),
		string(c.Priority),
		c.Message,
		c.Reasoning,
		ctxJSON,
		string(c.Status),
		formatTime(c.RequestedTime),
		formatTime(c.ScheduledFor),
		formatTime(c.CreatedAt),
		executedAt,
		formatTime(completedAt(c)),
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
func (r *SQLiteHistoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Communication, error) {
	row := r.conn.QueryRow(ctx,
		"SELECT "+historyColumns+" FROM communication_history WHERE id = ?", id.String())
	c, err := scanSQLite(row)
	if database.IsNoRows(err) {
		return nil, &domain.NotFoundError{ID: id}
	}
	return c, err
}

// List returns matching entries, most recently completed first.
func (r *SQLiteHistoryRepository) List(ctx context.Context, filter domain.HistoryFilter) ([]*domain.Communication, error) {
	query, args := historyQuery(filter, formatTime(filter.Since))
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return collect(rows, scanSQLite)
}

func scanSQLite(row database.Row) (*domain.Communication, error) {
	var (
		id, channel, typ, priority, status       string
		ctxJSON                                  string
		requested, scheduled, created, completed string
		executed                                 sql.NullString
		c                                        domain.Communication
	)
	err := row.Scan(
		&id, &c.Recipient, &channel, &typ, &priority, &c.Message, &c.Reasoning, &ctxJSON,
		&status, &requested, &scheduled, &created, &executed, &completed,
		&c.RetryCount, &c.LastError, &c.ExternalID,
	)
	if err != nil {
		return nil, err
	}

	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse history id: %w", err)
	}
	c.Channel = domain.Channel(channel)
	c.Type = domain.Type(typ)
	c.Priority = domain.Priority(priority)
	c.Status = domain.Status(status)
	if c.Context, err = decodeContext([]byte(ctxJSON)); err != nil {
		return nil, err
	}

	times := []struct {
		raw string
		dst *time.Time
	}{
		{requested, &c.RequestedTime},
		{scheduled, &c.ScheduledFor},
		{created, &c.CreatedAt},
	}
	for _, t := range times {
		if *t.dst, err = parseTime(t.raw); err != nil {
			return nil, err
		}
	}
	done, err := parseTime(completed)
	if err != nil {
		return nil, err
	}
	c.CompletedAt = &done
	if executed.Valid {
		at, err := parseTime(executed.String)
		if err != nil {
			return nil, err
		}
		c.ExecutedAt = &at
	}
	c.Dependencies = []uuid.UUID{}
	return &c, nil
}

// sortableTime is RFC 3339 with a fixed-width fraction, so text order matches time order.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sortableTime)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLLiveStore snapshots live and in-flight communications into the
// communication_live table. It serves installs without Redis, so separate
// CLI invocations share one schedule.
type SQLLiveStore struct {
	conn database.Connection
}

// NewSQLLiveStore creates a live store on the given connection.
func NewSQLLiveStore(conn database.Connection) *SQLLiveStore {
	return &SQLLiveStore{conn: conn}
}

// Save writes the current state of a communication.
func (s *SQLLiveStore) Save(ctx context.Context, c *domain.Communication) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode live entry %s: %w", c.ID, err)
	}
	query := s.conn.Driver().Rebind(`INSERT INTO communication_live (id, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`)
	if _, err := s.conn.Exec(ctx, query, c.ID.String(), string(data), formatTime(time.Now())); err != nil {
		return fmt.Errorf("save live entry %s: %w", c.ID, err)
	}
	return nil
}

// Delete removes a communication that left the live and in-flight sets.
func (s *SQLLiveStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := s.conn.Driver().Rebind("DELETE FROM communication_live WHERE id = ?")
	if _, err := s.conn.Exec(ctx, query, id.String()); err != nil {
		return fmt.Errorf("delete live entry %s: %w", id, err)
	}
	return nil
}

// Load returns one stored entry.
func (s *SQLLiveStore) Load(ctx context.Context, id uuid.UUID) (*domain.Communication, error) {
	query := s.conn.Driver().Rebind("SELECT body FROM communication_live WHERE id = ?")
	var body string
	if err := s.conn.QueryRow(ctx, query, id.String()).Scan(&body); err != nil {
		if database.IsNoRows(err) {
			return nil, &domain.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("load live entry %s: %w", id, err)
	}
	var c domain.Communication
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return nil, fmt.Errorf("decode live entry %s: %w", id, err)
	}
	return &c, nil
}

// LoadAll returns every stored entry ordered by ScheduledFor.
// Rows that fail to decode are skipped and reported in the error.
func (s *SQLLiveStore) LoadAll(ctx context.Context) ([]*domain.Communication, error) {
	rows, err := s.conn.Query(ctx, "SELECT id, body FROM communication_live")
	if err != nil {
		return nil, fmt.Errorf("load live entries: %w", err)
	}
	defer rows.Close()

	var (
		result []*domain.Communication
		bad    []string
	)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan live entry: %w", err)
		}
		var c domain.Communication
		if err := json.Unmarshal([]byte(body), &c); err != nil {
			bad = append(bad, id)
			continue
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load live entries: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledFor.Before(result[j].ScheduledFor)
	})
	if len(bad) > 0 {
		sort.Strings(bad)
		return result, fmt.Errorf("skipped %d undecodable live entries: %v", len(bad), bad)
	}
	return result, nil
}

// Clear drops the whole snapshot.
func (s *SQLLiveStore) Clear(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, "DELETE FROM communication_live")
	return err
}

package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database"
)

const historyColumns = `id, recipient, channel, type, priority, message, reasoning, context,
	status, requested_time, scheduled_for, created_at, executed_at, completed_at,
	retry_count, last_error, external_id`

func completedAt(c *domain.Communication) time.Time {
	if c.CompletedAt != nil {
		return *c.CompletedAt
	}
	return c.CreatedAt
}

func encodeContext(ctx map[string]any) (string, error) {
	if len(ctx) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}
	return string(data), nil
}

func decodeContext(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "{}" || string(raw) == "null" {
		return nil, nil
	}
	var ctx map[string]any
	if err := json.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return ctx, nil
}

// historyQuery builds the list query with '?' placeholders.
func historyQuery(filter domain.HistoryFilter, since any) (string, []any) {
	var (
		where []string
		args  []any
	)
	if !filter.Since.IsZero() {
		where = append(where, "completed_at >= ?")
		args = append(args, since)
	}
	if filter.Recipient != "" {
		where = append(where, "recipient = ?")
		args = append(args, filter.Recipient)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + historyColumns + " FROM communication_history"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY completed_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return query, args
}

func collect(rows database.Rows, scan func(database.Row) (*domain.Communication, error)) ([]*domain.Communication, error) {
	defer rows.Close()

	var result []*domain.Communication
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

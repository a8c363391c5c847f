package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryFilter narrows history queries.
type HistoryFilter struct {
	Since     time.Time
	Recipient string
	Status    Status
	Limit     int
}

// Matches reports whether a communication satisfies the filter, ignoring Limit.
func (f HistoryFilter) Matches(c *Communication) bool {
	if !f.Since.IsZero() {
		completed := c.CreatedAt
		if c.CompletedAt != nil {
			completed = *c.CompletedAt
		}
		if completed.Before(f.Since) {
			return false
		}
	}
	if f.Recipient != "" && c.Recipient != f.Recipient {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}

// HistoryRepository is the append-only log of terminal communications.
type HistoryRepository interface {
	Append(ctx context.Context, c *Communication) error
	FindByID(ctx context.Context, id uuid.UUID) (*Communication, error)
	List(ctx context.Context, filter HistoryFilter) ([]*Communication, error)
}

// LiveStore persists live and in-flight entries so they survive a restart and
// so processes sharing the store see each other's mutations.
type LiveStore interface {
	Save(ctx context.Context, c *Communication) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Load returns one stored entry or a NotFoundError.
	Load(ctx context.Context, id uuid.UUID) (*Communication, error)
	LoadAll(ctx context.Context) ([]*Communication, error)
}

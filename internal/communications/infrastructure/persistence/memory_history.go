package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
)

// InMemoryHistoryRepository keeps the history log in process memory.
type InMemoryHistoryRepository struct {
	mu      sync.RWMutex
	entries []*domain.Communication
	byID    map[uuid.UUID]*domain.Communication
}

// NewInMemoryHistoryRepository creates an empty history log.
func NewInMemoryHistoryRepository() *InMemoryHistoryRepository {
	return &InMemoryHistoryRepository{
		byID: make(map[uuid.UUID]*domain.Communication),
	}
}

// Append records a terminal communication. Appending the same id twice replaces the entry.
func (r *InMemoryHistoryRepository) Append(ctx context.Context, c *domain.Communication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := c.Clone()
	if _, exists := r.byID[c.ID]; exists {
		for i, e := range r.entries {
			if e.ID == c.ID {
				r.entries[i] = cp
				break
			}
		}
	} else {
		r.entries = append(r.entries, cp)
	}
	r.byID[c.ID] = cp
	return nil
}

// FindByID returns the entry with the given id.
func (r *InMemoryHistoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Communication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, &domain.NotFoundError{ID: id}
	}
	return c.Clone(), nil
}

// List returns matching entries, most recently completed first.
func (r *InMemoryHistoryRepository) List(ctx context.Context, filter domain.HistoryFilter) ([]*domain.Communication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Communication, 0, len(r.entries))
	for _, c := range r.entries {
		if filter.Matches(c) {
			result = append(result, c.Clone())
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return completedAt(result[i]).After(completedAt(result[j]))
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Len returns the number of stored entries.
func (r *InMemoryHistoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

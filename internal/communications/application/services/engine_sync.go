package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
)

// ReconcileResult counts the store changes Reconcile folded into the engine.
type ReconcileResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// Total returns the number of entries that changed.
func (r ReconcileResult) Total() int { return r.Added + r.Updated + r.Removed }

// Reconcile folds in mutations other processes made to the shared live store:
// entries submitted elsewhere are armed, entries canceled or fired elsewhere
// are dropped and rescheduled entries are re-armed at their stored time.
// In-flight entries and entries whose last local write failed keep their
// local state.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	if e.store == nil {
		return result, nil
	}

	e.mu.Lock()
	entries, loadErr := e.store.LoadAll(ctx)
	if loadErr != nil && len(entries) == 0 {
		e.mu.Unlock()
		return result, fmt.Errorf("reconcile live entries: %w", loadErr)
	}

	stored := make(map[uuid.UUID]*domain.Communication, len(entries))
	for _, s := range entries {
		stored[s.ID] = s
	}
	for id, s := range stored {
		if _, ok := e.inFlight[id]; ok {
			continue
		}
		if _, ok := e.unsynced[id]; ok {
			continue
		}
		local, ok := e.live[id]
		switch {
		case !ok:
			// Due entries without a local copy belong to the process that fired them.
			if s.Status == domain.StatusScheduled || s.Status == domain.StatusRetryScheduled {
				e.live[id] = s
				e.timers.arm(id, s.ScheduledFor)
				result.Added++
			}
		case s.Status == domain.StatusDue || s.Status.IsTerminal():
			e.timers.disarm(id)
			delete(e.live, id)
			result.Removed++
		case !s.ScheduledFor.Equal(local.ScheduledFor) || s.RetryCount != local.RetryCount:
			e.live[id] = s
			e.timers.arm(id, s.ScheduledFor)
			result.Updated++
		}
	}
	// A partial load cannot tell a deleted row from an undecodable one.
	if loadErr == nil {
		for id := range e.live {
			if _, ok := stored[id]; ok {
				continue
			}
			if _, ok := e.unsynced[id]; ok {
				continue
			}
			e.timers.disarm(id)
			delete(e.live, id)
			result.Removed++
		}
	}
	e.resync(ctx)
	e.stats.Reconciled += int64(result.Total())
	if result.Total() > 0 {
		e.recordGauges()
	}
	e.mu.Unlock()

	if result.Total() > 0 {
		e.logger.Info("live store reconciled",
			"added", result.Added,
			"updated", result.Updated,
			"removed", result.Removed,
		)
		e.notify()
	}
	if loadErr != nil {
		return result, fmt.Errorf("reconcile live entries: %w", loadErr)
	}
	return result, nil
}

// resync retries store writes that failed earlier. Caller holds mu.
func (e *Engine) resync(ctx context.Context) {
	for id := range e.unsynced {
		if c, ok := e.live[id]; ok {
			e.save(ctx, c)
			continue
		}
		if c, ok := e.inFlight[id]; ok {
			e.save(ctx, c)
			continue
		}
		e.forget(ctx, id)
	}
}

// confirmDue re-reads a popped entry from the shared store before it fires and
// returns the copy to deliver, or nil when another process canceled, fired or
// rescheduled it. A store error fires the local copy. Caller holds mu.
func (e *Engine) confirmDue(ctx context.Context, c *domain.Communication, now time.Time) *domain.Communication {
	if e.store == nil {
		return c
	}
	if _, ok := e.unsynced[c.ID]; ok {
		return c
	}

	stored, err := e.store.Load(ctx, c.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		delete(e.live, c.ID)
		e.stats.Reconciled++
		e.logger.Info("live entry removed by another process", "id", c.ID)
		return nil
	case err != nil:
		e.logger.Warn("failed to confirm due entry, firing local copy", "id", c.ID, "error", err)
		return c
	case stored.Status == domain.StatusDue || stored.Status.IsTerminal():
		delete(e.live, c.ID)
		e.stats.Reconciled++
		e.logger.Info("live entry already fired by another process", "id", c.ID)
		return nil
	case stored.ScheduledFor.After(now):
		e.live[c.ID] = stored
		e.timers.arm(c.ID, stored.ScheduledFor)
		e.stats.Reconciled++
		e.logger.Info("live entry rescheduled by another process",
			"id", c.ID,
			"scheduled_for", stored.ScheduledFor,
		)
		return nil
	}
	e.live[c.ID] = stored
	return stored
}

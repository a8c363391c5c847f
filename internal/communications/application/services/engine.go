package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/google/uuid"
)

const (
	// idleWait bounds how long the driver sleeps when no timer is armed.
	idleWait = time.Minute
	// defaultReconcileInterval is how often a running engine re-reads a shared live store.
	defaultReconcileInterval = 15 * time.Second
)

// ErrOutcomePending is returned when an outcome for the same entry is still being recorded.
var ErrOutcomePending = errors.New("outcome already being recorded")

// EngineConfig holds scheduling engine tunables.
type EngineConfig struct {
	CollisionWindow time.Duration
	Retry           domain.RetryPolicy
	// ReconcileInterval is how often the driver folds in changes other
	// processes made to the live store.
	ReconcileInterval time.Duration
}

// DefaultEngineConfig returns a one hour collision window and the default retry policy.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CollisionWindow:   time.Hour,
		Retry:             domain.DefaultRetryPolicy(),
		ReconcileInterval: defaultReconcileInterval,
	}
}

// EngineStats counts engine transitions since start.
type EngineStats struct {
	Submitted   int64 `json:"submitted"`
	Conflicts   int64 `json:"conflicts"`
	Rescheduled int64 `json:"rescheduled"`
	Canceled    int64 `json:"canceled"`
	Fired       int64 `json:"fired"`
	Succeeded   int64 `json:"succeeded"`
	Retried     int64 `json:"retried"`
	Failed      int64 `json:"failed"`
	Reconciled  int64 `json:"reconciled"`
	Live        int   `json:"live"`
	InFlight    int   `json:"in_flight"`
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock replaces the wall clock, letting tests drive simulated time.
func WithClock(clock domain.Clock) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithLiveStore persists live and in-flight entries on every mutation.
func WithLiveStore(store domain.LiveStore) EngineOption {
	return func(e *Engine) { e.store = store }
}

// WithMetrics records engine counters and gauges.
func WithMetrics(metrics observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = metrics }
}

// Engine owns the live set, the in-flight set and the timer queue.
// Every mutation runs under one mutex; events are published after it is released
// so consumers may call back into the engine.
type Engine struct {
	pipeline  *domain.RulePipeline
	history   domain.HistoryRepository
	publisher eventbus.Publisher
	config    EngineConfig
	logger    *slog.Logger
	clock     domain.Clock
	store     domain.LiveStore
	metrics   observability.Metrics

	mu       sync.Mutex
	live     map[uuid.UUID]*domain.Communication
	inFlight map[uuid.UUID]*domain.Communication
	timers   *timerQueue
	stats    EngineStats
	// completing holds in-flight ids whose history append is running outside mu.
	completing map[uuid.UUID]struct{}
	// unsynced holds ids whose last store write failed; local state wins for them.
	unsynced map[uuid.UUID]struct{}

	wake chan struct{}

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEngine creates a scheduling engine.
func NewEngine(
	pipeline *domain.RulePipeline,
	history domain.HistoryRepository,
	publisher eventbus.Publisher,
	config EngineConfig,
	logger *slog.Logger,
	opts ...EngineOption,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CollisionWindow <= 0 {
		config.CollisionWindow = time.Hour
	}
	if config.ReconcileInterval <= 0 {
		config.ReconcileInterval = defaultReconcileInterval
	}
	e := &Engine{
		pipeline:   pipeline,
		history:    history,
		publisher:  publisher,
		config:     config,
		logger:     logger,
		clock:      domain.SystemClock{},
		metrics:    observability.NoopMetrics{},
		live:       make(map[uuid.UUID]*domain.Communication),
		inFlight:   make(map[uuid.UUID]*domain.Communication),
		timers:     newTimerQueue(),
		completing: make(map[uuid.UUID]struct{}),
		unsynced:   make(map[uuid.UUID]struct{}),
		wake:       make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit validates, deconflicts and schedules a request, returning the new id.
func (e *Engine) Submit(ctx context.Context, req domain.Request, opts domain.SubmitOptions) (uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}

	e.mu.Lock()
	now := e.clock.Now()
	if req.RequestedTime.IsZero() || req.RequestedTime.Before(now) {
		req.RequestedTime = now
	}

	// Clone detaches the entry from the caller's context map.
	c := domain.NewCommunication(req, now).Clone()
	c.ScheduledFor = e.schedule(now, req.RequestedTime, c)

	var events []domain.CommunicationEvent
	collisions := e.collisions(req.Recipient, req.Channel, req.RequestedTime, c.ScheduledFor)
	if len(collisions) > 0 && !opts.ReplaceExisting {
		existing := collisions[0]
		e.stats.Conflicts++
		e.mu.Unlock()

		e.metrics.Counter(observability.MetricCommsConflicts, 1, observability.T("channel", string(req.Channel)))
		return uuid.Nil, &domain.ConflictError{
			ExistingID:   existing.ID,
			Recipient:    existing.Recipient,
			Channel:      existing.Channel,
			ScheduledFor: existing.ScheduledFor,
		}
	}
	replaced := make([]uuid.UUID, 0, len(collisions))
	for _, old := range collisions {
		e.dropLive(ctx, old)
		old.Status = domain.StatusCanceled
		e.stats.Canceled++
		replaced = append(replaced, old.ID)
		events = append(events, domain.NewCanceledEvent(old, now))
	}

	e.putLive(ctx, c)
	e.stats.Submitted++
	scheduled := domain.NewScheduledEvent(c, now)
	events = append(events, scheduled)
	e.recordGauges()
	e.mu.Unlock()

	entry := scheduled.Payload().Communication
	for _, id := range replaced {
		e.logger.Info("communication canceled", "id", id, "replaced_by", entry.ID)
		e.metrics.Counter(observability.MetricCommsCanceled, 1)
	}
	e.logger.Info("communication scheduled",
		"id", entry.ID,
		"recipient", entry.Recipient,
		"channel", entry.Channel,
		"priority", entry.Priority,
		"scheduled_for", entry.ScheduledFor,
		"replaced", len(collisions),
	)
	e.metrics.Counter(observability.MetricCommsSubmitted, 1, observability.T("channel", string(entry.Channel)))
	e.publish(ctx, events)
	e.notify()
	return entry.ID, nil
}

// Reschedule re-runs the rule pipeline on a new requested time for a live entry.
func (e *Engine) Reschedule(ctx context.Context, id uuid.UUID, requested time.Time) error {
	e.mu.Lock()
	c, ok := e.live[id]
	if !ok {
		e.mu.Unlock()
		return &domain.NotFoundError{ID: id}
	}

	now := e.clock.Now()
	if requested.IsZero() || requested.Before(now) {
		requested = now
	}
	c.ScheduledFor = e.schedule(now, requested, c)
	e.timers.arm(c.ID, c.ScheduledFor)
	e.save(ctx, c)
	e.stats.Rescheduled++
	event := domain.NewUpdatedEvent(c, now)
	e.mu.Unlock()

	e.logger.Info("communication rescheduled", "id", id, "scheduled_for", event.Payload().Communication.ScheduledFor)
	e.metrics.Counter(observability.MetricCommsRescheduled, 1)
	e.publish(ctx, []domain.CommunicationEvent{event})
	e.notify()
	return nil
}

// Cancel disarms and drops a live entry. It cannot abort a delivery already in flight.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) error {
	e.mu.Lock()
	c, ok := e.live[id]
	if !ok {
		e.mu.Unlock()
		return &domain.NotFoundError{ID: id}
	}
	e.dropLive(ctx, c)
	c.Status = domain.StatusCanceled
	e.stats.Canceled++
	event := domain.NewCanceledEvent(c, e.clock.Now())
	e.recordGauges()
	e.mu.Unlock()

	e.logger.Info("communication canceled", "id", id)
	e.metrics.Counter(observability.MetricCommsCanceled, 1)
	e.publish(ctx, []domain.CommunicationEvent{event})
	e.notify()
	return nil
}

// ProcessDue fires every entry whose deadline has passed on the engine clock,
// moving it to the in-flight set and emitting due. It returns the number fired.
func (e *Engine) ProcessDue(ctx context.Context) int {
	e.mu.Lock()
	now := e.clock.Now()
	var events []domain.CommunicationEvent
	for _, id := range e.timers.popDue(now) {
		c, ok := e.live[id]
		if !ok {
			continue
		}
		if c = e.confirmDue(ctx, c, now); c == nil {
			continue
		}
		delete(e.live, id)
		c.MarkDue(now)
		e.inFlight[id] = c
		e.save(ctx, c)
		e.stats.Fired++
		events = append(events, domain.NewDueEvent(c, now))
	}
	e.recordGauges()
	e.mu.Unlock()

	for _, evt := range events {
		c := evt.Payload().Communication
		e.logger.Debug("communication due", "id", c.ID, "recipient", c.Recipient, "channel", c.Channel)
		e.metrics.Counter(observability.MetricCommsDue, 1, observability.T("channel", string(c.Channel)))
	}
	e.publish(ctx, events)
	return len(events)
}

// ReportOutcome records the result of delivering an in-flight entry.
// Success and terminal failure append to history; other failures re-arm with backoff.
func (e *Engine) ReportOutcome(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error {
	e.mu.Lock()
	c, ok := e.inFlight[id]
	if !ok {
		e.mu.Unlock()
		return &domain.NotFoundError{ID: id}
	}
	if _, busy := e.completing[id]; busy {
		e.mu.Unlock()
		return fmt.Errorf("report outcome for %s: %w", id, ErrOutcomePending)
	}

	now := e.clock.Now()
	channelTag := observability.T("channel", string(c.Channel))

	if !outcome.Success && e.config.Retry.CanRetry(c.RetryCount) {
		delay := e.config.Retry.Delay(c.RetryCount + 1)
		delete(e.inFlight, id)
		c.ScheduleRetry(now.Add(delay), outcome.Error)
		e.live[id] = c
		e.timers.arm(id, c.ScheduledFor)
		e.save(ctx, c)
		e.stats.Retried++
		attempt := c.RetryCount
		event := domain.NewUpdatedEvent(c, now)
		e.recordGauges()
		e.mu.Unlock()

		e.logger.Warn("delivery failed, retry scheduled",
			"id", id,
			"attempt", attempt,
			"delay", delay,
			"error", outcome.Error,
		)
		e.metrics.Counter(observability.MetricCommsRetried, 1, channelTag)
		e.publish(ctx, []domain.CommunicationEvent{event})
		e.notify()
		return nil
	}

	done := c.Clone()
	if outcome.Success {
		done.MarkSucceeded(now, outcome.ExternalID)
	} else {
		done.MarkFailed(now, outcome.Error)
	}
	e.completing[id] = struct{}{}
	e.mu.Unlock()

	// The entry stays in flight until history holds it, so a failed append
	// can be reported again.
	err := e.history.Append(ctx, done)

	e.mu.Lock()
	delete(e.completing, id)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("append %s to history: %w", id, err)
	}
	delete(e.inFlight, id)
	e.forget(ctx, id)
	e.recordGauges()

	var events []domain.CommunicationEvent
	if outcome.Success {
		e.stats.Succeeded++
	} else {
		e.stats.Failed++
		events = append(events, domain.NewExecutionFailedEvent(done, outcome.Error, now))
	}
	e.mu.Unlock()

	if outcome.Success {
		e.logger.Info("communication delivered",
			"id", id,
			"external_id", outcome.ExternalID,
			"simulated", outcome.Simulated,
		)
		e.metrics.Counter(observability.MetricCommsSucceeded, 1, channelTag)
	} else {
		e.logger.Error("communication failed permanently",
			"id", id,
			"retries", done.RetryCount,
			"error", outcome.Error,
		)
		e.metrics.Counter(observability.MetricCommsFailed, 1, channelTag)
	}
	e.publish(ctx, events)
	return nil
}

// Restore reloads persisted entries after a restart. Entries that were in
// flight are re-armed as due now so they are delivered again.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	entries, loadErr := e.store.LoadAll(ctx)
	if loadErr != nil && len(entries) == 0 {
		return 0, fmt.Errorf("restore live entries: %w", loadErr)
	}

	e.mu.Lock()
	now := e.clock.Now()
	restored := 0
	for _, c := range entries {
		if _, ok := e.live[c.ID]; ok {
			continue
		}
		if _, ok := e.inFlight[c.ID]; ok {
			continue
		}
		if c.Status.IsTerminal() {
			e.forget(ctx, c.ID)
			continue
		}
		if c.Status == domain.StatusDue {
			c.ExecutedAt = nil
			c.ScheduledFor = now
			c.Status = domain.StatusScheduled
			if c.RetryCount > 0 {
				c.Status = domain.StatusRetryScheduled
			}
			e.save(ctx, c)
		}
		e.live[c.ID] = c
		e.timers.arm(c.ID, c.ScheduledFor)
		restored++
	}
	e.recordGauges()
	e.mu.Unlock()

	e.logger.Info("live entries restored", "count", restored)
	e.notify()
	if loadErr != nil {
		return restored, fmt.Errorf("restore live entries: %w", loadErr)
	}
	return restored, nil
}

// Start launches the timer driver. Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return nil
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.runMu.Unlock()

	e.wg.Add(1)
	go e.run(ctx)

	e.logger.Info("scheduling engine started",
		"collision_window", e.config.CollisionWindow,
		"max_retries", e.config.Retry.MaxRetries,
		"rules", e.pipeline.Rules(),
	)
	return nil
}

// Stop halts the timer driver and waits for it to exit. Entries stay armed.
func (e *Engine) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	e.runMu.Unlock()

	e.wg.Wait()
	e.logger.Info("scheduling engine stopped")
}

// IsRunning returns true while the timer driver is active.
func (e *Engine) IsRunning() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	var reconcile <-chan time.Time
	if e.store != nil {
		ticker := time.NewTicker(e.config.ReconcileInterval)
		defer ticker.Stop()
		reconcile = ticker.C
	}

	for {
		e.ProcessDue(ctx)
		timer.Reset(e.nextWait())

		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-e.wake:
		case <-timer.C:
		case <-reconcile:
			if _, err := e.Reconcile(ctx); err != nil {
				e.logger.Warn("live store reconcile failed", "error", err)
			}
		}
	}
}

func (e *Engine) nextWait() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	at, ok := e.timers.next()
	if !ok {
		return idleWait
	}
	wait := at.Sub(e.clock.Now())
	if wait < 0 {
		return 0
	}
	if wait > idleWait {
		return idleWait
	}
	return wait
}

// notify wakes the driver so it recomputes the earliest deadline.
func (e *Engine) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Get returns a copy of a live or in-flight entry.
func (e *Engine) Get(id uuid.UUID) (*domain.Communication, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.live[id]; ok {
		return c.Clone(), true
	}
	if c, ok := e.inFlight[id]; ok {
		return c.Clone(), true
	}
	return nil, false
}

// IsInFlight reports whether id is due and awaiting an outcome.
func (e *Engine) IsInFlight(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inFlight[id]
	return ok
}

// Live returns copies of the live set ordered by ScheduledFor.
func (e *Engine) Live() []*domain.Communication {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.live)
}

// InFlight returns copies of the in-flight set ordered by ScheduledFor.
func (e *Engine) InFlight() []*domain.Communication {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.inFlight)
}

// History lists terminal communications.
func (e *Engine) History(ctx context.Context, filter domain.HistoryFilter) ([]*domain.Communication, error) {
	return e.history.List(ctx, filter)
}

// RecentCommunications lists history completed within the last windowHours.
func (e *Engine) RecentCommunications(ctx context.Context, windowHours int) ([]*domain.Communication, error) {
	since := e.clock.Now().Add(-time.Duration(windowHours) * time.Hour)
	return e.history.List(ctx, domain.HistoryFilter{Since: since})
}

// NextDeadline returns the earliest armed deadline.
func (e *Engine) NextDeadline() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timers.next()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := e.stats
	stats.Live = len(e.live)
	stats.InFlight = len(e.inFlight)
	return stats
}

// collisions returns live entries for the same recipient and channel within the
// collision window of any of times, earliest first. Caller holds mu.
func (e *Engine) collisions(recipient string, channel domain.Channel, times ...time.Time) []*domain.Communication {
	var found []*domain.Communication
	for _, c := range e.live {
		for _, at := range times {
			if c.CollidesWith(recipient, channel, at, e.config.CollisionWindow) {
				found = append(found, c)
				break
			}
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].ScheduledFor.Before(found[j].ScheduledFor)
	})
	return found
}

func (e *Engine) schedule(now, requested time.Time, c *domain.Communication) time.Time {
	at := e.pipeline.Apply(now, requested, c)
	if at.Before(now) {
		return now
	}
	return at
}

// putLive stores and arms a live entry. Caller holds mu.
func (e *Engine) putLive(ctx context.Context, c *domain.Communication) {
	e.live[c.ID] = c
	e.timers.arm(c.ID, c.ScheduledFor)
	e.save(ctx, c)
}

// dropLive disarms and removes a live entry. Caller holds mu.
func (e *Engine) dropLive(ctx context.Context, c *domain.Communication) {
	e.timers.disarm(c.ID)
	delete(e.live, c.ID)
	e.forget(ctx, c.ID)
}

func (e *Engine) save(ctx context.Context, c *domain.Communication) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, c); err != nil {
		e.unsynced[c.ID] = struct{}{}
		e.logger.Warn("failed to persist live entry", "id", c.ID, "error", err)
		return
	}
	delete(e.unsynced, c.ID)
}

func (e *Engine) forget(ctx context.Context, id uuid.UUID) {
	if e.store == nil {
		return
	}
	if err := e.store.Delete(ctx, id); err != nil {
		e.unsynced[id] = struct{}{}
		e.logger.Warn("failed to delete live entry", "id", id, "error", err)
		return
	}
	delete(e.unsynced, id)
}

func (e *Engine) recordGauges() {
	e.metrics.Gauge(observability.MetricCommsLive, float64(len(e.live)))
	e.metrics.Gauge(observability.MetricCommsInFlight, float64(len(e.inFlight)))
}

func (e *Engine) publish(ctx context.Context, events []domain.CommunicationEvent) {
	if e.publisher == nil {
		return
	}
	for _, evt := range events {
		if err := eventbus.PublishEvent(ctx, e.publisher, evt, evt.Payload()); err != nil {
			e.logger.Error("failed to publish communication event",
				"routing_key", evt.RoutingKey(),
				"aggregate_id", evt.AggregateID(),
				"error", err,
			)
			continue
		}
		e.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("routing_key", evt.RoutingKey()))
	}
}

func snapshot(set map[uuid.UUID]*domain.Communication) []*domain.Communication {
	result := make([]*domain.Communication, 0, len(set))
	for _, c := range set {
		result = append(result, c.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ScheduledFor.Equal(result[j].ScheduledFor) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ScheduledFor.Before(result[j].ScheduledFor)
	})
	return result
}

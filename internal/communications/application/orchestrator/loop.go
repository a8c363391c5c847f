package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/google/uuid"
)

// Config holds the loop's cadence and delivery limits.
type Config struct {
	TickInterval        time.Duration
	HistoryWindowHours  int
	DeliveryTimeout     time.Duration
	DeliveryConcurrency int
}

// DefaultConfig returns a 30s cadence, a 24h history window, a 30s delivery
// timeout and eight concurrent deliveries.
func DefaultConfig() Config {
	return Config{
		TickInterval:        30 * time.Second,
		HistoryWindowHours:  24,
		DeliveryTimeout:     30 * time.Second,
		DeliveryConcurrency: 8,
	}
}

// Dependencies are the loop's collaborators. Scheduler, Deliverer, Contacts
// and Preferences are required; the rest are optional.
type Dependencies struct {
	Scheduler   Scheduler
	History     HistorySource
	Contacts    ContactDirectory
	Preferences PreferenceStore
	Deliverer   Deliverer
	Signals     SignalSource
	Finder      OpportunityFinder
	Learner     Learner
	Notifier    Notifier
	Recorder    ContactRecorder
	Clock       domain.Clock
	Metrics     observability.Metrics
}

// TickResult summarizes one pass of the loop.
type TickResult struct {
	Candidates int
	Submitted  int
	Conflicts  int
	Rejected   int
	Signals    int
	Err        error
}

// Loop gathers context, submits opportunities and forwards due communications to delivery.
type Loop struct {
	deps   Dependencies
	config Config
	logger *slog.Logger

	sem        chan struct{}
	deliveries sync.WaitGroup

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewLoop creates an orchestration loop.
func NewLoop(deps Dependencies, config Config, logger *slog.Logger) (*Loop, error) {
	if deps.Scheduler == nil {
		return nil, errors.New("orchestrator: scheduler is required")
	}
	if deps.Deliverer == nil {
		return nil, errors.New("orchestrator: deliverer is required")
	}
	if deps.Contacts == nil {
		return nil, errors.New("orchestrator: contact directory is required")
	}
	if deps.Preferences == nil {
		return nil, errors.New("orchestrator: preference store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Finder == nil {
		deps.Finder = MaintenanceFinder{}
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{Logger: logger}
	}
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}

	defaults := DefaultConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.HistoryWindowHours <= 0 {
		config.HistoryWindowHours = defaults.HistoryWindowHours
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = defaults.DeliveryTimeout
	}
	if config.DeliveryConcurrency <= 0 {
		config.DeliveryConcurrency = defaults.DeliveryConcurrency
	}

	return &Loop{
		deps:     deps,
		config:   config,
		logger:   logger,
		sem:      make(chan struct{}, config.DeliveryConcurrency),
		stopChan: make(chan struct{}),
	}, nil
}

// Start connects delivery channels and arms the tick interval.
// Calling Start on a running loop is a no-op.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.stopChan = make(chan struct{})
	l.mu.Unlock()

	if conn, ok := l.deps.Deliverer.(ChannelConnector); ok {
		if err := conn.Connect(ctx); err != nil {
			l.logger.Warn("failed to connect delivery channels", "error", err)
		}
	}

	l.wg.Add(1)
	go l.run(ctx)

	l.logger.Info("orchestration loop started",
		"tick_interval", l.config.TickInterval,
		"history_window_hours", l.config.HistoryWindowHours,
		"delivery_timeout", l.config.DeliveryTimeout,
		"delivery_concurrency", l.config.DeliveryConcurrency,
	)
	return nil
}

// Stop disarms the interval, waits for in-flight deliveries and releases
// channel resources. Calling Stop on a stopped loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopChan)
	l.mu.Unlock()

	l.wg.Wait()
	l.Drain()

	if conn, ok := l.deps.Deliverer.(ChannelConnector); ok {
		if err := conn.Close(); err != nil {
			l.logger.Warn("failed to close delivery channels", "error", err)
		}
	}
	l.logger.Info("orchestration loop stopped")
}

// IsRunning returns true while the tick interval is armed.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Drain waits for every delivery started so far to report its outcome.
func (l *Loop) Drain() {
	l.deliveries.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one pass: snapshot, identify, submit, dispatch polled signals, learn.
// Collaborator failures are logged and reported in the result; they never panic the loop.
func (l *Loop) Tick(ctx context.Context) (result TickResult) {
	ctx = observability.WithCorrelationID(ctx, "")
	timer := observability.StartTimer("orchestration.tick").WithMetrics(l.deps.Metrics)
	defer func() { timer.StopWithError(result.Err) }()
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("tick panicked: %v", r)
			l.recordError("panic")
			l.logger.Error("orchestration tick panicked", "panic", r)
		}
	}()

	l.deps.Metrics.Counter(observability.MetricLoopTicks, 1)

	snapshot, err := l.Snapshot(ctx)
	if err != nil {
		l.recordError("snapshot")
		l.logger.ErrorContext(ctx, "failed to gather tick context", "error", err)
		result.Err = err
		return result
	}

	requests, err := l.deps.Finder.Identify(ctx, snapshot)
	if err != nil {
		l.recordError("identify")
		l.logger.ErrorContext(ctx, "opportunity identification failed", "error", err)
		result.Err = err
		return result
	}
	result.Candidates = len(requests)
	l.deps.Metrics.Counter(observability.MetricLoopCandidates, int64(len(requests)))

	for _, req := range requests {
		switch _, err := l.deps.Scheduler.Submit(ctx, req, domain.SubmitOptions{}); {
		case err == nil:
			result.Submitted++
		case errors.Is(err, domain.ErrConflict):
			result.Conflicts++
			l.logger.Debug("opportunity conflicts with a scheduled communication",
				"recipient", req.Recipient,
				"channel", req.Channel,
				"error", err,
			)
		default:
			result.Rejected++
			l.recordError("submit")
			l.logger.Warn("failed to submit opportunity",
				"recipient", req.Recipient,
				"channel", req.Channel,
				"error", err,
			)
		}
	}

	for _, sig := range snapshot.Signals {
		if _, err := l.HandleSignal(ctx, sig); err != nil && !errors.Is(err, domain.ErrConflict) {
			l.recordError("signal")
			l.logger.Warn("failed to handle signal", "kind", sig.Kind, "contact_id", sig.ContactID, "error", err)
			continue
		}
		result.Signals++
	}

	if l.deps.Learner != nil {
		if err := l.deps.Learner.Learn(ctx, snapshot); err != nil {
			l.recordError("learn")
			l.logger.Warn("learning step failed", "error", err)
		}
	}

	if result.Candidates > 0 || result.Signals > 0 {
		l.logger.InfoContext(ctx, "orchestration tick completed",
			"candidates", result.Candidates,
			"submitted", result.Submitted,
			"conflicts", result.Conflicts,
			"rejected", result.Rejected,
			"signals", result.Signals,
		)
	}
	return result
}

// Snapshot gathers the context for one tick.
func (l *Loop) Snapshot(ctx context.Context) (Snapshot, error) {
	now := l.deps.Clock.Now()
	snapshot := Snapshot{
		Live:          l.deps.Scheduler.Live(),
		ChannelStatus: l.deps.Deliverer.GetChannelStatus(),
		Factors:       factorsAt(now),
	}

	if l.deps.History != nil {
		recent, err := l.deps.History.RecentCommunications(ctx, l.config.HistoryWindowHours)
		if err != nil {
			return Snapshot{}, fmt.Errorf("recent communications: %w", err)
		}
		snapshot.RecentHistory = recent
	}

	contacts, err := l.deps.Contacts.ContactsNeedingMaintenance(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("contacts needing maintenance: %w", err)
	}
	snapshot.ContactsNeedingMaintenance = contacts

	prefs, err := l.deps.Preferences.CommunicationPreferences(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("communication preferences: %w", err)
	}
	snapshot.Preferences = prefs

	if l.deps.Signals != nil {
		signals, err := l.deps.Signals.Signals(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("signals: %w", err)
		}
		snapshot.Signals = signals
	}

	return snapshot, nil
}

// HandleSignal routes a signal to its trigger handler.
func (l *Loop) HandleSignal(ctx context.Context, sig domain.Signal) (uuid.UUID, error) {
	switch sig.Kind {
	case domain.SignalCrisis:
		return l.HandleCrisis(ctx, sig)
	case domain.SignalRelationshipStale:
		return l.HandleRelationshipStale(ctx, sig.ContactID)
	default:
		return uuid.Nil, fmt.Errorf("%w: unknown signal kind %q", domain.ErrInvalidRequest, sig.Kind)
	}
}

// HandleCrisis submits an immediate high-priority crisis response.
func (l *Loop) HandleCrisis(ctx context.Context, sig domain.Signal) (uuid.UUID, error) {
	channel, err := l.channelFor(ctx, sig.ContactID, sig.Channel)
	if err != nil {
		return uuid.Nil, err
	}
	reasoning := "crisis detected"
	if sig.Summary != "" {
		reasoning = "crisis detected: " + sig.Summary
	}
	req := domain.Request{
		Recipient:     sig.ContactID,
		Channel:       channel,
		Type:          domain.TypeCrisisResponse,
		Priority:      domain.PriorityHigh,
		Message:       "I saw your message and wanted to check in right away. How can I help?",
		Reasoning:     reasoning,
		RequestedTime: l.deps.Clock.Now(),
		Context:       map[string]any{"signal": string(sig.Kind)},
	}
	return l.submitTrigger(ctx, req)
}

// HandleRelationshipStale submits an immediate medium-priority maintenance message.
func (l *Loop) HandleRelationshipStale(ctx context.Context, contactID string) (uuid.UUID, error) {
	channel, err := l.channelFor(ctx, contactID, "")
	if err != nil {
		return uuid.Nil, err
	}
	contact, err := l.deps.Contacts.Contact(ctx, contactID)
	if err != nil {
		l.logger.Debug("stale contact lookup failed, using generic message", "contact_id", contactID, "error", err)
	}
	if contact.ID == "" {
		contact.ID = contactID
	}
	now := l.deps.Clock.Now()
	req := domain.Request{
		Recipient:     contactID,
		Channel:       channel,
		Type:          domain.TypeRelationshipMaintenance,
		Priority:      domain.PriorityMedium,
		Message:       maintenanceMessage(contact),
		Reasoning:     quietFor(contact, now),
		RequestedTime: now,
		Context:       map[string]any{"signal": string(domain.SignalRelationshipStale)},
	}
	return l.submitTrigger(ctx, req)
}

func (l *Loop) submitTrigger(ctx context.Context, req domain.Request) (uuid.UUID, error) {
	id, err := l.deps.Scheduler.Submit(ctx, req, domain.SubmitOptions{})
	if err != nil {
		return uuid.Nil, err
	}
	l.logger.Info("trigger submitted communication",
		"communication_id", id,
		"recipient", req.Recipient,
		"type", req.Type,
		"priority", req.Priority,
	)
	return id, nil
}

// channelFor picks the explicit channel, then the contact's preference, then the user default.
func (l *Loop) channelFor(ctx context.Context, contactID string, explicit domain.Channel) (domain.Channel, error) {
	if contactID == "" {
		return "", fmt.Errorf("%w: signal has no contact", domain.ErrInvalidRequest)
	}
	if explicit != "" {
		return explicit, nil
	}
	if contact, err := l.deps.Contacts.Contact(ctx, contactID); err == nil && contact.PreferredChannel != "" {
		return contact.PreferredChannel, nil
	}
	prefs, err := l.deps.Preferences.CommunicationPreferences(ctx)
	if err != nil {
		return "", fmt.Errorf("communication preferences: %w", err)
	}
	if prefs.DefaultChannel != "" {
		return prefs.DefaultChannel, nil
	}
	return domain.ChannelEmail, nil
}

// Deliver sends one due communication and reports the outcome back to the scheduler.
// Entries that are no longer in flight are skipped.
func (l *Loop) Deliver(ctx context.Context, c *domain.Communication) {
	if !l.deps.Scheduler.IsInFlight(c.ID) {
		l.logger.Debug("skipping delivery for communication no longer in flight", "communication_id", c.ID)
		return
	}

	outcome := l.send(ctx, c)
	if err := l.deps.Scheduler.ReportOutcome(ctx, c.ID, outcome); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			l.logger.Debug("outcome for communication no longer in flight", "communication_id", c.ID)
			return
		}
		l.recordError("report")
		l.logger.Error("failed to report delivery outcome", "communication_id", c.ID, "error", err)
		return
	}

	if outcome.Success && l.deps.Recorder != nil {
		if err := l.deps.Recorder.RecordContact(ctx, c.Recipient, l.deps.Clock.Now()); err != nil {
			l.logger.Warn("failed to record contact", "recipient", c.Recipient, "error", err)
		}
	}
}

// send bounds one delivery attempt by the delivery timeout. A sender that
// ignores its context is abandoned and the attempt counts as failed; its
// goroutine exits whenever the sender returns.
func (l *Loop) send(ctx context.Context, c *domain.Communication) domain.Outcome {
	sendCtx, cancel := context.WithTimeout(ctx, l.config.DeliveryTimeout)
	defer cancel()

	result := make(chan domain.Outcome, 1)
	go func() {
		result <- l.deps.Deliverer.Send(sendCtx, c)
	}()

	select {
	case outcome := <-result:
		if !outcome.Success && outcome.Error == "" && sendCtx.Err() != nil {
			outcome.Error = l.timeoutError(sendCtx).Error()
		}
		return outcome
	case <-sendCtx.Done():
		l.recordError("deliver_timeout")
		l.logger.Warn("delivery abandoned after timeout",
			"communication_id", c.ID,
			"channel", c.Channel,
			"timeout", l.config.DeliveryTimeout,
		)
		return domain.FailureOutcome(l.timeoutError(sendCtx))
	}
}

func (l *Loop) timeoutError(sendCtx context.Context) error {
	return fmt.Errorf("delivery timed out after %s: %w", l.config.DeliveryTimeout, sendCtx.Err())
}

// dispatch runs Deliver on its own goroutine, bounded by the concurrency limit.
// The delivery outlives the caller's context; only the delivery timeout bounds it.
func (l *Loop) dispatch(ctx context.Context, c *domain.Communication) {
	ctx = context.WithoutCancel(ctx)
	l.deliveries.Add(1)
	go func() {
		defer l.deliveries.Done()
		l.sem <- struct{}{}
		defer func() { <-l.sem }()
		l.Deliver(ctx, c)
	}()
}

func (l *Loop) recordError(stage string) {
	l.deps.Metrics.Counter(observability.MetricLoopErrors, 1, observability.T("stage", stage))
}

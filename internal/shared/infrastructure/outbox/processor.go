package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/cadence/pkg/observability"
)

// ProcessorConfig tunes the relay from the outbox table to the broker.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxRetries is the number of failed relays before a message is
	// dead-lettered. Zero or less dead-letters on the first failure.
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	// Retention is how long relayed messages are kept. Zero keeps them.
	Retention       time.Duration
	CleanupInterval time.Duration
}

// DefaultProcessorConfig polls twice a second and keeps a week of history.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     500 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		Retention:        7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Stats is a snapshot of relay progress, served on /health.
type Stats struct {
	IsRunning       bool       `json:"running"`
	PublishedCount  uint64     `json:"published"`
	FailedCount     uint64     `json:"failed"`
	DeadCount       uint64     `json:"dead"`
	LagSeconds      float64    `json:"lag_seconds"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
	OldestMessageAt *time.Time `json:"oldest_message_at,omitempty"`
}

type relayOutcome int

const (
	relayed relayOutcome = iota
	deferred
	deadLettered
)

// Processor relays stored envelopes to the broker in creation order.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics
	now       func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor wires a relay; nil metrics and logger fall back to no-ops
// and the default logger.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, metrics observability.Metrics, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With("component", "outbox"),
		metrics:   metrics,
		now:       time.Now,
	}
}

// Start launches the polling goroutine. Calling it twice is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})

	p.wg.Add(1)
	go p.run(ctx, p.stopChan)

	p.logger.Info("outbox relay started", "poll_interval", p.config.PollInterval, "batch_size", p.config.BatchSize)
	return nil
}

// Stop waits for the current batch to finish. Calling it twice is a no-op.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("outbox relay stopped")
}

// IsRunning reports whether the polling goroutine is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) run(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	poll := time.NewTicker(p.config.PollInterval)
	defer poll.Stop()

	var cleanup <-chan time.Time
	if p.config.Retention > 0 && p.config.CleanupInterval > 0 {
		t := time.NewTicker(p.config.CleanupInterval)
		defer t.Stop()
		cleanup = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-poll.C:
			if err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("outbox batch failed", "error", err)
			}
		case <-cleanup:
			p.Cleanup(ctx)
		}
	}
}

// ProcessOnce relays one batch. Per-message failures are recorded on the
// message and never abort the batch; only a failed read is returned.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	batch, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return err
	}
	p.noteBatch(batch)

	for _, msg := range batch {
		switch p.relay(ctx, msg) {
		case relayed:
			p.count(&p.stats.PublishedCount, observability.MetricOutboxRelayed)
		case deferred:
			p.count(&p.stats.FailedCount, observability.MetricOutboxFailed)
		case deadLettered:
			p.count(&p.stats.DeadCount, observability.MetricOutboxDead)
		}
	}
	return nil
}

func (p *Processor) relay(ctx context.Context, msg *Message) relayOutcome {
	log := p.logger.With("outbox_id", msg.ID, "routing_key", msg.RoutingKey, "event_id", msg.EventID)

	pubErr := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
	if pubErr == nil {
		if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
			// The broker has it; a second relay is absorbed by idempotent consumers.
			log.Error("mark relayed message", "error", err)
		}
		return relayed
	}

	p.noteError(pubErr)
	attempt := msg.RetryCount + 1
	if p.config.MaxRetries <= 0 || attempt >= p.config.MaxRetries {
		log.Warn("dead-lettering outbox message", "attempts", attempt, "error", pubErr)
		if err := p.repo.MarkDead(ctx, msg.ID, pubErr.Error()); err != nil {
			log.Error("mark dead-lettered message", "error", err)
		}
		return deadLettered
	}

	next := p.now().Add(p.backoff(attempt))
	log.Warn("outbox relay failed", "attempt", attempt, "next_retry_at", next, "correlation_id", msg.CorrelationID, "error", pubErr)
	if err := p.repo.MarkFailed(ctx, msg.ID, pubErr.Error(), next); err != nil {
		log.Error("mark failed message", "error", err)
	}
	return deferred
}

// backoff doubles from RetryBackoffBase for each attempt, capped at RetryBackoffMax.
func (p *Processor) backoff(attempt int) time.Duration {
	base, ceiling := p.config.RetryBackoffBase, p.config.RetryBackoffMax
	if base <= 0 {
		base = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

// Cleanup removes relayed messages older than Retention and returns how many.
func (p *Processor) Cleanup(ctx context.Context) int64 {
	deleted, err := p.repo.DeleteOld(ctx, p.config.Retention)
	if err != nil {
		p.logger.Warn("outbox cleanup failed", "error", err)
		return 0
	}
	if deleted > 0 {
		p.logger.Info("outbox cleanup", "deleted", deleted)
	}
	return deleted
}

// GetStats returns a copy of the relay counters.
func (p *Processor) GetStats() Stats {
	running := p.IsRunning()
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	s := p.stats
	s.IsRunning = running
	return s
}

func (p *Processor) count(field *uint64, metric string) {
	p.metrics.Counter(metric, 1)
	p.statsMu.Lock()
	*field++
	p.statsMu.Unlock()
}

func (p *Processor) noteError(err error) {
	at := p.now()
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &at
}

func (p *Processor) noteBatch(batch []*Message) {
	at := p.now()
	var oldest *time.Time
	for _, msg := range batch {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}
	lag := 0.0
	if oldest != nil {
		lag = at.Sub(*oldest).Seconds()
	}
	p.metrics.Gauge(observability.MetricOutboxLag, lag)

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastProcessedAt = &at
	p.stats.OldestMessageAt = oldest
	p.stats.LagSeconds = lag
}

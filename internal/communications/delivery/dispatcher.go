package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// DispatcherConfig configures breaker behaviour for every channel.
type DispatcherConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a breaker.
	FailureThreshold uint32

	// OpenTimeout is how long a breaker stays open before letting a probe request through.
	OpenTimeout time.Duration

	// MaxRequests is the number of requests allowed in the half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state used to clear counts.
	Interval time.Duration

	// ProbeTimeout bounds each channel probe.
	ProbeTimeout time.Duration
}

// DefaultDispatcherConfig returns the default breaker settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		FailureThreshold: 5,
		OpenTimeout:      time.Minute,
		MaxRequests:      1,
		Interval:         0,
		ProbeTimeout:     10 * time.Second,
	}
}

type channelEntry struct {
	sender  Sender
	breaker *gobreaker.CircuitBreaker[string]
}

// Dispatcher routes communications to the sender registered for their channel.
// Send never returns an error: every failure becomes a failed Outcome.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[domain.Channel]*channelEntry
	status   map[domain.Channel]bool
	resolver AddressResolver
	config   DispatcherConfig
	metrics  observability.Metrics
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with no senders registered.
func NewDispatcher(config DispatcherConfig, resolver AddressResolver, metrics observability.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = DefaultDispatcherConfig().FailureThreshold
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultDispatcherConfig().ProbeTimeout
	}
	return &Dispatcher{
		channels: make(map[domain.Channel]*channelEntry),
		status:   make(map[domain.Channel]bool),
		resolver: resolver,
		config:   config,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register adds a sender, replacing any sender already serving its channel.
// A newly registered channel reports disconnected until it is probed.
func (d *Dispatcher) Register(sender Sender) {
	channel := sender.Channel()
	settings := gobreaker.Settings{
		Name:        string(channel),
		MaxRequests: d.config.MaxRequests,
		Interval:    d.config.Interval,
		Timeout:     d.config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= d.config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Info("delivery breaker state changed",
				"channel", name,
				"from", from.String(),
				"to", to.String(),
			)
			switch to {
			case gobreaker.StateOpen:
				d.setStatus(domain.Channel(name), false)
			case gobreaker.StateClosed:
				d.setStatus(domain.Channel(name), true)
			}
		},
	}

	d.mu.Lock()
	d.channels[channel] = &channelEntry{
		sender:  sender,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
	}
	d.status[channel] = false
	d.mu.Unlock()
}

// Channels returns the registered channels in a stable order.
func (d *Dispatcher) Channels() []domain.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	channels := make([]domain.Channel, 0, len(d.channels))
	for ch := range d.channels {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}

// Connect probes every channel and records which ones are reachable.
func (d *Dispatcher) Connect(ctx context.Context) error {
	d.ProbeAll(ctx)
	return nil
}

// Close marks every channel disconnected.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.status {
		d.status[ch] = false
		d.metrics.Gauge(observability.MetricChannelConnected, 0, observability.T("channel", string(ch)))
	}
	return nil
}

// ProbeAll checks every sender concurrently. A failing probe only marks its own
// channel disconnected.
func (d *Dispatcher) ProbeAll(ctx context.Context) map[domain.Channel]error {
	d.mu.RLock()
	senders := make([]Sender, 0, len(d.channels))
	for _, entry := range d.channels {
		senders = append(senders, entry.sender)
	}
	d.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		results = make(map[domain.Channel]error, len(senders))
	)
	for _, s := range senders {
		wg.Add(1)
		go func(s Sender) {
			defer wg.Done()
			err := d.probe(ctx, s)
			resMu.Lock()
			results[s.Channel()] = err
			resMu.Unlock()
			d.setStatus(s.Channel(), err == nil)
			if err != nil {
				d.logger.Warn("delivery channel probe failed", "channel", s.Channel(), "error", err)
			}
		}(s)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) probe(ctx context.Context, s Sender) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.ProbeTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return s.Probe(ctx)
}

// GetChannelStatus returns the connection state of every registered channel.
func (d *Dispatcher) GetChannelStatus() map[domain.Channel]bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[domain.Channel]bool, len(d.status))
	for ch, ok := range d.status {
		out[ch] = ok
	}
	return out
}

// Send delivers a communication and reports the outcome.
func (d *Dispatcher) Send(ctx context.Context, c *domain.Communication) domain.Outcome {
	if c == nil {
		return domain.FailureOutcome(errors.New("nil communication"))
	}

	d.mu.RLock()
	entry, ok := d.channels[c.Channel]
	d.mu.RUnlock()
	if !ok {
		outcome := domain.FailureOutcome(&domain.ChannelUnavailableError{Channel: c.Channel, Reason: "no sender registered"})
		d.recordOutcome(c.Channel, "unavailable", 0)
		return outcome
	}

	msg := NewMessage(ctx, c, d.resolver)
	start := time.Now()
	externalID, err := entry.breaker.Execute(func() (id string, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sender panicked: %v", r)
			}
		}()
		return entry.sender.Send(ctx, msg)
	})
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &domain.ChannelUnavailableError{Channel: c.Channel, Reason: err.Error()}
			d.recordOutcome(c.Channel, "unavailable", elapsed)
		} else {
			if !errors.Is(err, domain.ErrChannelUnavailable) {
				err = &domain.DeliveryError{Channel: c.Channel, Err: err}
			}
			d.recordOutcome(c.Channel, "failed", elapsed)
		}
		d.logger.Warn("delivery failed",
			"communication_id", c.ID,
			"channel", c.Channel,
			"error", err,
		)
		return domain.FailureOutcome(err)
	}

	outcome := domain.SuccessOutcome(externalID)
	if sim, ok := entry.sender.(simulator); ok && sim.Simulated() {
		outcome.Simulated = true
		d.recordOutcome(c.Channel, "simulated", elapsed)
	} else {
		d.recordOutcome(c.Channel, "succeeded", elapsed)
	}
	d.logger.Info("delivery succeeded",
		"communication_id", c.ID,
		"channel", c.Channel,
		"external_id", externalID,
		"simulated", outcome.Simulated,
	)
	return outcome
}

func (d *Dispatcher) setStatus(ch domain.Channel, connected bool) {
	d.mu.Lock()
	if _, ok := d.channels[ch]; ok {
		d.status[ch] = connected
	}
	d.mu.Unlock()

	value := 0.0
	if connected {
		value = 1
	}
	d.metrics.Gauge(observability.MetricChannelConnected, value, observability.T("channel", string(ch)))
}

func (d *Dispatcher) recordOutcome(ch domain.Channel, outcome string, elapsed time.Duration) {
	d.metrics.Counter(observability.MetricDeliveryOutcomes, 1,
		observability.T("channel", string(ch)),
		observability.T("outcome", outcome),
	)
	if elapsed > 0 {
		d.metrics.Timing(observability.MetricDeliveryDuration, elapsed, observability.T("channel", string(ch)))
	}
}

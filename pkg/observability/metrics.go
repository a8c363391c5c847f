package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics is the recording surface shared by the engine, loop, dispatcher
// and outbox. Names are the Metric* constants; tags become labels.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Histogram(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag represents a key-value pair for metric labeling.
type Tag struct {
	Key   string
	Value string
}

// T creates a new Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics is a no-op implementation of Metrics.
type NoopMetrics struct{}

func (NoopMetrics) Counter(name string, value int64, tags ...Tag)           {}
func (NoopMetrics) Gauge(name string, value float64, tags ...Tag)           {}
func (NoopMetrics) Histogram(name string, value float64, tags ...Tag)       {}
func (NoopMetrics) Timing(name string, duration time.Duration, tags ...Tag) {}

// InMemoryMetrics keeps every sample in maps. It backs tests and the CLI,
// which has no scrape endpoint.
type InMemoryMetrics struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
	timings    map[string][]time.Duration
}

// NewInMemoryMetrics creates a new in-memory metrics collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
		timings:    make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.counters[key] += value
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.gauges[key] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.histograms[key] = append(m.histograms[key], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.timings[key] = append(m.timings[key], duration)
}

// GetCounter returns the current value of a counter.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// GetGauge returns the current value of a gauge.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[formatKey(name, tags)]
}

// GetHistogram returns all recorded values for a histogram.
func (m *InMemoryMetrics) GetHistogram(name string, tags ...Tag) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.histograms[formatKey(name, tags)]
}

// GetTimings returns all recorded timings.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timings[formatKey(name, tags)]
}

// Reset clears all recorded metrics.
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[string]int64)
	m.gauges = make(map[string]float64)
	m.histograms = make(map[string][]float64)
	m.timings = make(map[string][]time.Duration)
}

// formatKey renders name plus tags sorted by key, so tag order at the call
// site does not matter.
func formatKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]Tag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	var b strings.Builder
	b.WriteString(name)
	for _, t := range sorted {
		b.WriteString(":" + t.Key + "=" + t.Value)
	}
	return b.String()
}

// Standard metric names used throughout Cadence.
const (
	// Operation metrics
	MetricOperationTotal    = "cadence.operation.total"
	MetricOperationDuration = "cadence.operation.duration"
	MetricOperationErrors   = "cadence.operation.errors"

	// Scheduling engine metrics
	MetricCommsSubmitted   = "cadence.comms.submitted"
	MetricCommsConflicts   = "cadence.comms.conflicts"
	MetricCommsRescheduled = "cadence.comms.rescheduled"
	MetricCommsCanceled    = "cadence.comms.canceled"
	MetricCommsDue         = "cadence.comms.due"
	MetricCommsSucceeded   = "cadence.comms.succeeded"
	MetricCommsRetried     = "cadence.comms.retried"
	MetricCommsFailed      = "cadence.comms.failed"
	MetricCommsLive        = "cadence.comms.live"
	MetricCommsInFlight    = "cadence.comms.in_flight"

	// Delivery metrics
	MetricDeliveryDuration = "cadence.delivery.duration"
	MetricDeliveryOutcomes = "cadence.delivery.outcomes"
	MetricChannelConnected = "cadence.delivery.channel_connected"

	// Orchestration loop metrics
	MetricLoopTicks      = "cadence.loop.ticks"
	MetricLoopCandidates = "cadence.loop.candidates"
	MetricLoopErrors     = "cadence.loop.errors"

	// Event bus metrics
	MetricEventsPublished      = "cadence.events.published"
	MetricEventsDispatchFailed = "cadence.events.dispatch_failed"

	// Outbox relay metrics
	MetricOutboxRelayed = "cadence.outbox.relayed"
	MetricOutboxFailed  = "cadence.outbox.failed"
	MetricOutboxDead    = "cadence.outbox.dead"
	MetricOutboxLag     = "cadence.outbox.lag_seconds"
)

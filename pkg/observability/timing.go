package observability

import (
	"log/slog"
	"time"
)

// Timer measures one operation. Stopping it records cadence.operation.*
// metrics tagged with the operation name and, with a logger set, logs the outcome.
type Timer struct {
	operation string
	start     time.Time
	logger    *slog.Logger
	metrics   Metrics
	tags      []Tag
}

// StartTimer starts timing operation.
func StartTimer(operation string) *Timer {
	return &Timer{operation: operation, start: time.Now()}
}

// WithLogger logs the outcome on stop: debug on success, warn on failure.
func (t *Timer) WithLogger(logger *slog.Logger) *Timer {
	t.logger = logger
	return t
}

// WithMetrics records duration, count and errors on stop.
func (t *Timer) WithMetrics(metrics Metrics) *Timer {
	t.metrics = metrics
	return t
}

// WithTags adds labels to the recorded metrics.
func (t *Timer) WithTags(tags ...Tag) *Timer {
	t.tags = append(t.tags, tags...)
	return t
}

// Elapsed returns the time since start.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Stop records a successful operation.
func (t *Timer) Stop() time.Duration {
	return t.StopWithError(nil)
}

// StopWithError records the operation, counting it as an error when err is set.
func (t *Timer) StopWithError(err error) time.Duration {
	elapsed := t.Elapsed()

	if t.metrics != nil {
		tags := append(append([]Tag(nil), t.tags...), T("operation", t.operation))
		t.metrics.Timing(MetricOperationDuration, elapsed, tags...)
		t.metrics.Counter(MetricOperationTotal, 1, tags...)
		if err != nil {
			t.metrics.Counter(MetricOperationErrors, 1, tags...)
		}
	}

	if t.logger != nil {
		if err != nil {
			t.logger.Warn("operation failed", OperationKey, t.operation, DurationKey, elapsed.Milliseconds(), ErrorKey, err)
		} else {
			t.logger.Debug("operation completed", OperationKey, t.operation, DurationKey, elapsed.Milliseconds())
		}
	}
	return elapsed
}

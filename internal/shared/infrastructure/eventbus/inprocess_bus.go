package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/cadence/pkg/observability"
)

// InProcessEventBus dispatches envelopes synchronously to registered
// consumers. No bus-level lock is held during dispatch, so a consumer may
// publish from inside Handle. Consumer failures are logged and counted but
// never reach the publisher.
type InProcessEventBus struct {
	registry *ConsumerRegistry
	logger   *slog.Logger
	metrics  observability.Metrics
}

// BusOption configures an InProcessEventBus.
type BusOption func(*InProcessEventBus)

// WithBusMetrics counts dispatch failures per routing key.
func WithBusMetrics(m observability.Metrics) BusOption {
	return func(b *InProcessEventBus) {
		if m != nil {
			b.metrics = m
		}
	}
}

func NewInProcessEventBus(logger *slog.Logger, opts ...BusOption) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &InProcessEventBus{
		registry: NewConsumerRegistry(logger),
		logger:   logger.With("component", "eventbus"),
		metrics:  observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *InProcessEventBus) RegisterConsumer(consumer EventConsumer) {
	b.registry.Register(consumer)
}

// Publish decodes payload and dispatches it. Undecodable payloads are
// dropped with an error log.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	var event ConsumedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.ErrorContext(ctx, "dropping undecodable event", "routing_key", routingKey, "error", err)
		return nil
	}
	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}
	return b.PublishConsumedEvent(ctx, &event)
}

// PublishConsumedEvent dispatches an already decoded envelope.
func (b *InProcessEventBus) PublishConsumedEvent(ctx context.Context, event *ConsumedEvent) error {
	started := time.Now()
	err := b.registry.Dispatch(ctx, event)
	attrs := []any{
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"duration_ms", time.Since(started).Milliseconds(),
	}
	if err != nil {
		b.metrics.Counter(observability.MetricEventsDispatchFailed, 1, observability.T("routing_key", event.RoutingKey))
		b.logger.ErrorContext(ctx, "event dispatch failed", append(attrs, "error", err)...)
		return nil
	}
	b.logger.DebugContext(ctx, "event dispatched", attrs...)
	return nil
}

// Close is a no-op.
func (b *InProcessEventBus) Close() error { return nil }

func (b *InProcessEventBus) Registry() *ConsumerRegistry { return b.registry }

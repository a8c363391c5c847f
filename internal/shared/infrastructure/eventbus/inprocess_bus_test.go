package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/shared/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dueKey       = "communications.communication.due"
	scheduledKey = "communications.communication.scheduled"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestInProcessEventBus_Publish(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(testLogger())

	consumer := &mockConsumer{eventTypes: []string{dueKey}}
	bus.RegisterConsumer(consumer)

	event := &eventbus.ConsumedEvent{
		EventID:       uuid.New(),
		AggregateID:   uuid.New(),
		AggregateType: "Communication",
		RoutingKey:    dueKey,
		OccurredAt:    time.Now(),
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), dueKey, payload))

	require.Len(t, consumer.events, 1)
	assert.Equal(t, event.EventID, consumer.events[0].EventID)
}

func TestInProcessEventBus_RoutingKeyFallback(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(testLogger())
	consumer := &mockConsumer{eventTypes: []string{dueKey}}
	bus.RegisterConsumer(consumer)

	payload, err := json.Marshal(&eventbus.ConsumedEvent{EventID: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), dueKey, payload))
	require.Len(t, consumer.events, 1)
	assert.Equal(t, dueKey, consumer.events[0].RoutingKey)
}

func TestInProcessEventBus_MultipleConsumers(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(testLogger())

	consumer1 := &mockConsumer{eventTypes: []string{dueKey}}
	consumer2 := &mockConsumer{eventTypes: []string{dueKey}}
	bus.RegisterConsumer(consumer1)
	bus.RegisterConsumer(consumer2)

	err := bus.PublishConsumedEvent(context.Background(), &eventbus.ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: dueKey,
	})
	require.NoError(t, err)

	assert.Len(t, consumer1.events, 1)
	assert.Len(t, consumer2.events, 1)
}

func TestInProcessEventBus_ConsumerErrorIsSwallowed(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	bus := eventbus.NewInProcessEventBus(testLogger(), eventbus.WithBusMetrics(metrics))
	consumer := &mockConsumer{
		eventTypes: []string{dueKey},
		err:        errors.New("consumer error"),
	}
	bus.RegisterConsumer(consumer)

	payload, err := json.Marshal(&eventbus.ConsumedEvent{EventID: uuid.New(), RoutingKey: dueKey})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), dueKey, payload))
	assert.Len(t, consumer.events, 1)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricEventsDispatchFailed, observability.T("routing_key", dueKey)))
}

func TestInProcessEventBus_InvalidPayload(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(testLogger())
	consumer := &mockConsumer{eventTypes: []string{dueKey}}
	bus.RegisterConsumer(consumer)

	require.NoError(t, bus.Publish(context.Background(), dueKey, []byte("invalid json")))
	assert.Empty(t, consumer.events)
}

// reentrantConsumer publishes a follow-up event from inside Handle.
type reentrantConsumer struct {
	bus *eventbus.InProcessEventBus
}

func (c *reentrantConsumer) EventTypes() []string { return []string{dueKey} }

func (c *reentrantConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	payload, err := json.Marshal(&eventbus.ConsumedEvent{EventID: uuid.New(), RoutingKey: scheduledKey})
	if err != nil {
		return err
	}
	return c.bus.Publish(ctx, scheduledKey, payload)
}

func TestInProcessEventBus_ReentrantPublish(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(testLogger())
	follower := &mockConsumer{eventTypes: []string{scheduledKey}}
	bus.RegisterConsumer(&reentrantConsumer{bus: bus})
	bus.RegisterConsumer(follower)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.PublishConsumedEvent(context.Background(), &eventbus.ConsumedEvent{EventID: uuid.New(), RoutingKey: dueKey})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-entrant publish deadlocked")
	}
	assert.Len(t, follower.events, 1)
}

func TestInProcessEventBus_Registry(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(testLogger())
	bus.RegisterConsumer(&mockConsumer{eventTypes: []string{dueKey}})

	assert.Equal(t, 1, bus.Registry().ConsumerCount())
	require.NoError(t, bus.Close())
}

type testEvent struct {
	domain.BaseEvent
}

func TestPublishEvent_WrapsDomainEvent(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(testLogger())
	consumer := &mockConsumer{eventTypes: []string{scheduledKey}}
	bus.RegisterConsumer(consumer)

	aggregateID := uuid.New()
	event := testEvent{BaseEvent: domain.NewBaseEvent(aggregateID, "Communication", scheduledKey, time.Now())}
	correlation := uuid.New()
	event.SetMetadata(domain.EventMetadata{CorrelationID: correlation})

	err := eventbus.PublishEvent(context.Background(), bus, event, map[string]string{"recipient": "c1"})
	require.NoError(t, err)

	require.Len(t, consumer.events, 1)
	got := consumer.events[0]
	assert.Equal(t, event.EventID(), got.EventID)
	assert.Equal(t, aggregateID, got.AggregateID)
	assert.Equal(t, "Communication", got.AggregateType)
	assert.Equal(t, correlation.String(), got.Metadata.CorrelationID)

	var body map[string]string
	require.NoError(t, got.Decode(&body))
	assert.Equal(t, "c1", body["recipient"])
}

func TestNewRawEnvelope(t *testing.T) {
	data, err := eventbus.NewRawEnvelope("signals.crisis.detected", map[string]string{"contact_id": "c9"})
	require.NoError(t, err)

	var envelope eventbus.ConsumedEvent
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "signals.crisis.detected", envelope.RoutingKey)
	assert.NotEqual(t, uuid.Nil, envelope.EventID)

	var body map[string]string
	require.NoError(t, envelope.Decode(&body))
	assert.Equal(t, "c9", body["contact_id"])
}

type recordingPublisher struct {
	keys   []string
	err    error
	closed bool
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.keys = append(p.keys, routingKey)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestFanOutPublisher(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("broker down")}
	fanOut := eventbus.NewFanOutPublisher(testLogger(), ok, failing)

	err := fanOut.Publish(context.Background(), dueKey, []byte("{}"))
	assert.ErrorContains(t, err, "publisher 1: broker down")
	assert.Equal(t, []string{dueKey}, ok.keys)
	assert.Equal(t, []string{dueKey}, failing.keys)

	require.NoError(t, fanOut.Close())
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}

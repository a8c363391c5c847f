package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	crisisKey   = "signals.crisis.detected"
	canceledKey = "communications.communication.canceled"
)

type mockConsumer struct {
	eventTypes []string
	events     []*eventbus.ConsumedEvent
	err        error
}

func (m *mockConsumer) EventTypes() []string {
	return m.eventTypes
}

func (m *mockConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	m.events = append(m.events, event)
	return m.err
}

type panickingConsumer struct{}

func (panickingConsumer) EventTypes() []string { return []string{dueKey} }

func (panickingConsumer) Handle(context.Context, *eventbus.ConsumedEvent) error {
	panic("nil contact")
}

func dueEvent() *eventbus.ConsumedEvent {
	return &eventbus.ConsumedEvent{EventID: uuid.New(), RoutingKey: dueKey}
}

func TestConsumerRegistry_Subscriptions(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(testLogger())
	assert.Equal(t, 0, registry.ConsumerCount())

	registry.Register(&mockConsumer{eventTypes: []string{dueKey, crisisKey}})
	registry.Register(&mockConsumer{eventTypes: []string{dueKey, canceledKey}})

	assert.Len(t, registry.ConsumersFor(dueKey), 2)
	assert.Len(t, registry.ConsumersFor(crisisKey), 1)
	assert.Empty(t, registry.ConsumersFor("unknown.event.type"))
	assert.Equal(t, []string{canceledKey, dueKey, crisisKey}, registry.EventTypes())
	assert.Equal(t, 4, registry.ConsumerCount())
}

func TestConsumerRegistry_ConsumersForReturnsCopy(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(testLogger())
	registry.Register(&mockConsumer{eventTypes: []string{dueKey}})

	consumers := registry.ConsumersFor(dueKey)
	consumers[0] = nil

	assert.NotNil(t, registry.ConsumersFor(dueKey)[0])
}

func TestConsumerRegistry_Dispatch(t *testing.T) {
	tests := []struct {
		name      string
		consumers []*mockConsumer
		wantErrs  []string
	}{
		{
			name:      "no consumers",
			consumers: nil,
		},
		{
			name: "all succeed",
			consumers: []*mockConsumer{
				{eventTypes: []string{dueKey}},
				{eventTypes: []string{dueKey}},
			},
		},
		{
			name: "failures are joined and do not stop later consumers",
			consumers: []*mockConsumer{
				{eventTypes: []string{dueKey}, err: errors.New("sender offline")},
				{eventTypes: []string{dueKey}},
				{eventTypes: []string{dueKey}, err: errors.New("history locked")},
			},
			wantErrs: []string{"sender offline", "history locked"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := eventbus.NewConsumerRegistry(testLogger())
			for _, c := range tt.consumers {
				registry.Register(c)
			}

			err := registry.Dispatch(context.Background(), dueEvent())

			if len(tt.wantErrs) == 0 {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				for _, msg := range tt.wantErrs {
					assert.Contains(t, err.Error(), msg)
				}
			}
			for _, c := range tt.consumers {
				assert.Len(t, c.events, 1)
			}
		})
	}
}

func TestConsumerRegistry_DispatchRecoversPanics(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(testLogger())
	after := &mockConsumer{eventTypes: []string{dueKey}}
	registry.Register(panickingConsumer{})
	registry.Register(after)

	var err error
	require.NotPanics(t, func() { err = registry.Dispatch(context.Background(), dueEvent()) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Len(t, after.events, 1)
}

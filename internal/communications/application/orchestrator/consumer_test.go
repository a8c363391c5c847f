package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/application/services"
	"github.com/felixgeelhaar/cadence/internal/communications/delivery"
	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/communications/infrastructure/directory"
	"github.com/felixgeelhaar/cadence/internal/communications/infrastructure/persistence"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type zeroJitter struct{}

func (zeroJitter) Jitter(time.Duration) time.Duration { return 0 }

// scriptedSender fails a fixed number of times before succeeding.
type scriptedSender struct {
	mu       sync.Mutex
	channel  domain.Channel
	failures int
	sent     []delivery.Message
}

func (s *scriptedSender) Channel() domain.Channel { return s.channel }

func (s *scriptedSender) Send(ctx context.Context, msg delivery.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.failures > 0 {
		s.failures--
		return "", errors.New("platform rejected message")
	}
	return "ext-" + msg.CommunicationID.String()[:8], nil
}

func (s *scriptedSender) Probe(context.Context) error { return nil }

func (s *scriptedSender) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type harness struct {
	clock    *movableClock
	engine   *services.Engine
	bus      *eventbus.InProcessEventBus
	loop     *Loop
	sender   *scriptedSender
	history  *persistence.InMemoryHistoryRepository
	notifier *recordingNotifier
}

func newHarness(t *testing.T, failures int) *harness {
	t.Helper()
	h := &harness{
		clock:    &movableClock{now: tuesday10},
		bus:      eventbus.NewInProcessEventBus(testLogger()),
		sender:   &scriptedSender{channel: domain.ChannelEmail, failures: failures},
		history:  persistence.NewInMemoryHistoryRepository(),
		notifier: &recordingNotifier{},
	}

	pipeline := domain.NewDefaultRulePipeline(domain.DefaultRuleConfig(), zeroJitter{})
	h.engine = services.NewEngine(pipeline, h.history, h.bus, services.DefaultEngineConfig(), testLogger(),
		services.WithClock(h.clock))

	contacts := []domain.Contact{{
		ID:               "c1",
		Name:             "Ada",
		PreferredChannel: domain.ChannelEmail,
		Addresses:        map[domain.Channel]string{domain.ChannelEmail: "ada@example.com"},
		LastContactedAt:  tuesday10,
	}}
	dir := directory.NewInMemory(contacts, domain.Preferences{}, directory.WithClock(h.clock))

	dispatcher := delivery.NewDispatcher(delivery.DefaultDispatcherConfig(), dir, nil, testLogger())
	dispatcher.Register(h.sender)

	loop, err := NewLoop(Dependencies{
		Scheduler:   h.engine,
		History:     h.engine,
		Contacts:    dir,
		Preferences: dir,
		Deliverer:   dispatcher,
		Notifier:    h.notifier,
		Recorder:    dir,
		Clock:       h.clock,
	}, DefaultConfig(), testLogger())
	require.NoError(t, err)
	h.loop = loop
	h.bus.RegisterConsumer(loop)
	return h
}

// fire advances the clock to the next deadline, fires it and waits for delivery.
func (h *harness) fire(t *testing.T) {
	t.Helper()
	at, ok := h.engine.NextDeadline()
	require.True(t, ok, "no timer armed")
	h.clock.Set(at)
	require.Equal(t, 1, h.engine.ProcessDue(context.Background()))
	h.loop.Drain()
}

func TestDueConsumer_DeliversAndRecordsSuccess(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	id, err := h.loop.HandleCrisis(ctx, domain.Signal{Kind: domain.SignalCrisis, ContactID: "c1"})
	require.NoError(t, err)

	h.fire(t)

	assert.Equal(t, 1, h.sender.attempts())
	assert.Equal(t, "ada@example.com", h.sender.sent[0].Address)
	assert.False(t, h.engine.IsInFlight(id))

	stored, err := h.history.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)
	assert.Equal(t, domain.TypeCrisisResponse, stored.Type)
	assert.Equal(t, domain.PriorityHigh, stored.Priority)
	assert.NotEmpty(t, stored.ExternalID)
}

func TestDueConsumer_RetriesThenNotifiesTerminalFailure(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()

	id, err := h.loop.HandleRelationshipStale(ctx, "c1")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		h.fire(t)
	}

	assert.Equal(t, 4, h.sender.attempts())
	_, ok := h.engine.NextDeadline()
	assert.False(t, ok, "no fourth retry is armed")

	stored, err := h.history.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	require.Len(t, h.notifier.reasons, 1)
	assert.Contains(t, h.notifier.reasons[0], "platform rejected message")
}

func TestDueConsumer_CanceledEntryNeverDelivered(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	id, err := h.loop.HandleRelationshipStale(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, h.engine.Cancel(ctx, id))

	h.clock.Set(tuesday10.Add(48 * time.Hour))
	assert.Equal(t, 0, h.engine.ProcessDue(ctx))
	h.loop.Drain()
	assert.Equal(t, 0, h.sender.attempts())
}

func TestDueConsumer_StaleDueEventIsIgnored(t *testing.T) {
	h := newHarness(t, 0)
	stale := domain.NewCommunication(domain.Request{Recipient: "c1", Channel: domain.ChannelEmail}, tuesday10)

	err := eventbus.PublishEvent(context.Background(), h.bus, domain.NewDueEvent(stale, tuesday10), domain.EventPayload{Communication: stale})
	require.NoError(t, err)
	h.loop.Drain()

	assert.Equal(t, 0, h.sender.attempts())
}

func TestSignalsOverTheBus(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	require.NoError(t, PublishSignal(ctx, h.bus, domain.Signal{Kind: domain.SignalCrisis, ContactID: "c1"}))

	live := h.engine.Live()
	require.Len(t, live, 1)
	assert.Equal(t, domain.TypeCrisisResponse, live[0].Type)

	// A stale trigger for the same slot conflicts and is swallowed by the consumer.
	require.NoError(t, PublishSignal(ctx, h.bus, domain.Signal{Kind: domain.SignalRelationshipStale, ContactID: "c1"}))
	assert.Len(t, h.engine.Live(), 1)
}

func TestHandle_RejectsMalformedEvents(t *testing.T) {
	h := newHarness(t, 0)

	err := h.loop.Handle(context.Background(), &eventbus.ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: domain.RoutingKeyDue,
		Payload:    []byte(`{}`),
	})
	assert.Error(t, err)

	err = h.loop.Handle(context.Background(), &eventbus.ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: domain.RoutingKeyCrisisDetected,
	})
	assert.Error(t, err)

	assert.NoError(t, h.loop.Handle(context.Background(), &eventbus.ConsumedEvent{RoutingKey: "unrelated"}))
	assert.ElementsMatch(t, []string{
		domain.RoutingKeyDue,
		domain.RoutingKeyExecutionFailed,
		domain.RoutingKeyCrisisDetected,
		domain.RoutingKeyRelationshipStale,
	}, h.loop.EventTypes())
}

func TestTick_EndToEndWithEngine(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	// Not yet stale.
	result := h.loop.Tick(ctx)
	require.NoError(t, result.Err)
	assert.Equal(t, 0, result.Candidates)

	h.clock.Set(tuesday10.Add(31 * 24 * time.Hour))
	result = h.loop.Tick(ctx)
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Submitted)

	// Already live, so the next tick proposes nothing.
	result = h.loop.Tick(ctx)
	assert.Equal(t, 0, result.Candidates)

	h.fire(t)
	assert.Equal(t, 1, h.sender.attempts())

	// The successful send refreshed the contact.
	result = h.loop.Tick(ctx)
	assert.Equal(t, 0, result.Candidates)
}

func TestSignalConsumer_OnlyTriggers(t *testing.T) {
	h := newHarness(t, 0)
	consumer := h.loop.SignalConsumer()

	assert.ElementsMatch(t, []string{
		domain.RoutingKeyCrisisDetected,
		domain.RoutingKeyRelationshipStale,
	}, consumer.EventTypes())

	data, err := eventbus.NewRawEnvelope(domain.RoutingKeyCrisisDetected, domain.Signal{ContactID: "c1"})
	require.NoError(t, err)
	registry := eventbus.NewConsumerRegistry(testLogger())
	registry.Register(consumer)

	var event eventbus.ConsumedEvent
	require.NoError(t, json.Unmarshal(data, &event))
	require.NoError(t, registry.Dispatch(context.Background(), &event))

	live := h.engine.Live()
	require.Len(t, live, 1)
	assert.Equal(t, domain.PriorityHigh, live[0].Priority)
}

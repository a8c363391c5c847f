package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAcker struct {
	acked   int
	nacked  int
	requeue []bool
}

func (a *recordingAcker) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *recordingAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type signalConsumer struct {
	err  error
	seen []string
}

func (s *signalConsumer) EventTypes() []string { return []string{"signals.crisis.detected"} }

func (s *signalConsumer) Handle(ctx context.Context, event *ConsumedEvent) error {
	s.seen = append(s.seen, event.RoutingKey)
	return s.err
}

func newOfflineConsumer(handler EventConsumer) *RabbitMQConsumer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewConsumerRegistry(logger)
	registry.Register(handler)
	return &RabbitMQConsumer{registry: registry, logger: logger, closeChan: make(chan struct{})}
}

func TestRabbitMQConsumer_ProcessFillsRoutingKey(t *testing.T) {
	handler := &signalConsumer{}
	c := newOfflineConsumer(handler)

	body, err := NewRawEnvelope("", map[string]string{"contact_id": "c1"})
	require.NoError(t, err)
	err = c.process(context.Background(), amqp.Delivery{RoutingKey: "signals.crisis.detected", Body: body})

	require.NoError(t, err)
	assert.Equal(t, []string{"signals.crisis.detected"}, handler.seen)
}

func TestRabbitMQConsumer_UndecodableBodyIsAcked(t *testing.T) {
	handler := &signalConsumer{}
	c := newOfflineConsumer(handler)
	acker := &recordingAcker{}
	msg := amqp.Delivery{Acknowledger: acker, RoutingKey: "signals.crisis.detected", Body: []byte("{")}

	c.settle(msg, c.process(context.Background(), msg))

	assert.Equal(t, 1, acker.acked)
	assert.Empty(t, handler.seen)
}

func TestRabbitMQConsumer_FailureRequeuedOnce(t *testing.T) {
	c := newOfflineConsumer(&signalConsumer{err: errors.New("unknown contact")})
	acker := &recordingAcker{}
	body, err := NewRawEnvelope("signals.crisis.detected", map[string]string{"contact_id": "c1"})
	require.NoError(t, err)

	first := amqp.Delivery{Acknowledger: acker, Body: body}
	c.settle(first, c.process(context.Background(), first))

	again := amqp.Delivery{Acknowledger: acker, Body: body, Redelivered: true}
	c.settle(again, c.process(context.Background(), again))

	assert.Equal(t, 0, acker.acked)
	assert.Equal(t, []bool{true, false}, acker.requeue)
}

func TestRabbitMQConsumer_CloseIsIdempotent(t *testing.T) {
	c := newOfflineConsumer(&signalConsumer{})

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case <-c.closeChan:
	default:
		t.Fatal("close channel still open")
	}
}

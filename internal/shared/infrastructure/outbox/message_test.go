package outbox

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	t.Run("reads ids from the envelope", func(t *testing.T) {
		id := uuid.New()
		occurred := time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC)
		payload := []byte(`{"event_id":"` + id.String() + `","routing_key":"communications.communication.due",` +
			`"occurred_at":"2024-06-04T10:00:00Z","payload":{},"metadata":{"correlation_id":"corr-1"}}`)

		msg, err := NewMessage("communications.communication.due", payload, time.Now())

		require.NoError(t, err)
		assert.Equal(t, id, msg.EventID)
		assert.Equal(t, "communications.communication.due", msg.RoutingKey)
		assert.Equal(t, "corr-1", msg.CorrelationID)
		assert.Equal(t, occurred, msg.CreatedAt)
		assert.JSONEq(t, string(payload), string(msg.Payload))
		assert.Nil(t, msg.PublishedAt)
	})

	t.Run("raw envelopes round trip", func(t *testing.T) {
		payload, err := eventbus.NewRawEnvelope("signals.crisis.detected", map[string]string{"contact_id": "c1"})
		require.NoError(t, err)

		msg, err := NewMessage("signals.crisis.detected", payload, time.Now())

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, msg.EventID)
		assert.Empty(t, msg.CorrelationID)
	})

	t.Run("fills missing id and time", func(t *testing.T) {
		now := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)

		msg, err := NewMessage("k", []byte(`{}`), now)

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, msg.EventID)
		assert.Equal(t, now, msg.CreatedAt)
	})

	t.Run("rejects non-json payloads", func(t *testing.T) {
		_, err := NewMessage("k", []byte("not json"), time.Now())
		assert.Error(t, err)
	})
}

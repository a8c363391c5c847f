package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewBaseEvent(t *testing.T) {
	aggregateID := uuid.New()
	at := time.Date(2024, 6, 4, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	event := domain.NewBaseEvent(aggregateID, "Communication", "communications.communication.due", at)

	assert.NotEqual(t, uuid.Nil, event.EventID())
	assert.Equal(t, aggregateID, event.AggregateID())
	assert.Equal(t, "Communication", event.AggregateType())
	assert.Equal(t, "communications.communication.due", event.RoutingKey())
	assert.True(t, event.OccurredAt().Equal(at))
	assert.Equal(t, time.UTC, event.OccurredAt().Location())
}

func TestNewBaseEvent_ZeroTimeUsesWallClock(t *testing.T) {
	before := time.Now()
	event := domain.NewBaseEvent(uuid.New(), "Communication", "k", time.Time{})

	assert.False(t, event.OccurredAt().Before(before.UTC().Add(-time.Second)))
}

func TestBaseEvent_UniqueIDs(t *testing.T) {
	a := domain.NewBaseEvent(uuid.New(), "Communication", "k", time.Now())
	b := domain.NewBaseEvent(uuid.New(), "Communication", "k", time.Now())

	assert.NotEqual(t, a.EventID(), b.EventID())
}

func TestBaseEvent_SetMetadata(t *testing.T) {
	event := domain.NewBaseEvent(uuid.New(), "Communication", "k", time.Now())
	correlation, causation := uuid.New(), uuid.New()

	event.SetMetadata(domain.EventMetadata{CorrelationID: correlation, CausationID: causation})

	assert.Equal(t, correlation, event.Metadata().CorrelationID)
	assert.Equal(t, causation, event.Metadata().CausationID)
}

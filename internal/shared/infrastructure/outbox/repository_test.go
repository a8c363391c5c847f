package outbox_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database/postgres"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repositories(t *testing.T) map[string]func(t *testing.T) outbox.Repository {
	return map[string]func(t *testing.T) outbox.Repository{
		"sqlite": func(t *testing.T) outbox.Repository {
			ctx := context.Background()
			conn, err := sqlite.NewConnection(ctx, database.Config{SQLitePath: ":memory:"})
			require.NoError(t, err)
			t.Cleanup(func() { _ = conn.Close() })
			require.NoError(t, migrations.Run(ctx, conn))
			repo, err := outbox.NewRepository(conn)
			require.NoError(t, err)
			return repo
		},
		"postgres": func(t *testing.T) outbox.Repository {
			dbURL := os.Getenv("TEST_DATABASE_URL")
			if dbURL == "" {
				t.Skip("TEST_DATABASE_URL not set, skipping integration test")
			}
			ctx := context.Background()
			conn, err := postgres.NewConnection(ctx, database.Config{URL: dbURL})
			if err != nil {
				t.Skipf("Failed to connect to test database: %v", err)
			}
			t.Cleanup(func() { _ = conn.Close() })
			require.NoError(t, migrations.Run(ctx, conn))
			_, _ = conn.Exec(ctx, "DELETE FROM outbox")
			repo, err := outbox.NewRepository(conn)
			require.NoError(t, err)
			return repo
		},
	}
}

func envelope(t *testing.T, routingKey string) *outbox.Message {
	t.Helper()
	payload, err := eventbus.NewRawEnvelope(routingKey, map[string]string{"contact_id": "c1"})
	require.NoError(t, err)
	msg, err := outbox.NewMessage(routingKey, payload, time.Now())
	require.NoError(t, err)
	return msg
}

func TestRepository_Lifecycle(t *testing.T) {
	for name, open := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			first := envelope(t, "communications.communication.scheduled")
			second := envelope(t, "communications.communication.due")
			third := envelope(t, "communications.communication.execution_failed")
			for _, msg := range []*outbox.Message{first, second, third} {
				require.NoError(t, repo.Save(ctx, msg))
				assert.NotZero(t, msg.ID)
			}

			pending, err := repo.GetUnpublished(ctx, 10)
			require.NoError(t, err)
			require.Len(t, pending, 3)
			assert.Equal(t, first.EventID, pending[0].EventID)
			assert.Equal(t, "communications.communication.scheduled", pending[0].RoutingKey)
			assert.JSONEq(t, string(first.Payload), string(pending[0].Payload))

			require.NoError(t, repo.MarkPublished(ctx, first.ID))
			require.NoError(t, repo.MarkFailed(ctx, second.ID, "broker down", time.Now().Add(time.Hour)))
			require.NoError(t, repo.MarkDead(ctx, third.ID, "gave up"))

			pending, err = repo.GetUnpublished(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, pending, "published, backing-off and dead messages are skipped")

			require.NoError(t, repo.MarkFailed(ctx, second.ID, "broker down", time.Now().Add(-time.Second)))
			pending, err = repo.GetUnpublished(ctx, 10)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, 2, pending[0].RetryCount)
			require.NotNil(t, pending[0].LastError)
			assert.Equal(t, "broker down", *pending[0].LastError)

			deleted, err := repo.DeleteOld(ctx, -time.Minute)
			require.NoError(t, err)
			assert.Equal(t, int64(1), deleted)
		})
	}
}

func TestRepository_GetUnpublishedHonoursLimit(t *testing.T) {
	repo := repositories(t)["sqlite"](t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, envelope(t, "communications.communication.due")))
	}

	pending, err := repo.GetUnpublished(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestPublisher_StoresEnvelopeForRelay(t *testing.T) {
	repo := repositories(t)["sqlite"](t)
	ctx := context.Background()
	publisher := outbox.NewPublisher(repo, nil)

	payload, err := eventbus.NewRawEnvelope("signals.relationship.stale", map[string]string{"contact_id": "c9"})
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(ctx, "signals.relationship.stale", payload))
	require.NoError(t, publisher.Close())

	b := newBroker()
	processor := outbox.NewProcessor(repo, b, outbox.DefaultProcessorConfig(), nil, nil)
	require.NoError(t, processor.ProcessOnce(ctx))

	require.Equal(t, []string{"signals.relationship.stale"}, b.relayed())
	assert.JSONEq(t, string(payload), string(b.payloads[0]))

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPublisher_RejectsMalformedEnvelope(t *testing.T) {
	repo := repositories(t)["sqlite"](t)
	err := outbox.NewPublisher(repo, nil).Publish(context.Background(), "k", []byte("nope"))
	assert.Error(t, err)
}

package mcp

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	internalApp "github.com/felixgeelhaar/cadence/internal/app"
	"github.com/felixgeelhaar/cadence/internal/communications/application/queries"
	"github.com/felixgeelhaar/cadence/pkg/config"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tuesday10 = time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type noJitter struct{}

func (noJitter) Jitter(time.Duration) time.Duration { return 0 }

func newTestApp(t *testing.T) *cli.App {
	t.Helper()
	dir := t.TempDir()
	contacts := filepath.Join(dir, "contacts.yaml")
	require.NoError(t, os.WriteFile(contacts, []byte(`
preferences:
  default_channel: email
contacts:
  - id: c1
    name: Ada
    preferred_channel: email
    addresses:
      email: ada@example.com
    last_contacted_at: 2024-06-01T10:00:00Z
`), 0o600))

	cfg := &config.Config{
		AppEnv:                   "test",
		LocalMode:                true,
		DatabaseDriver:           "sqlite",
		SQLitePath:               filepath.Join(dir, "cadence.db"),
		LiveSnapshotEnabled:      true,
		EventBusMode:             "inprocess",
		CollisionWindow:          time.Hour,
		RetryMax:                 3,
		RetryBaseDelay:           60 * time.Second,
		RetryMultiplier:          2,
		BusinessHoursStart:       9,
		BusinessHoursEnd:         17,
		SpacingJitterMax:         30 * time.Minute,
		LoopTickInterval:         time.Hour,
		LoopHistoryWindowHours:   24,
		DeliveryTimeout:          5 * time.Second,
		DeliveryConcurrency:      2,
		MaintenanceThresholdDays: 30,
		ContactsFile:             contacts,
		DeliverySimulateUnwired:  true,
		BreakerFailureThreshold:  5,
		BreakerOpenTimeout:       time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	container, err := internalApp.NewContainer(context.Background(), cfg, logger,
		internalApp.WithClock(fixedClock{now: tuesday10}),
		internalApp.WithJitter(noJitter{}),
		internalApp.WithMetrics(observability.NewInMemoryMetrics()),
	)
	require.NoError(t, err)
	t.Cleanup(container.Close)
	return cli.NewApp(container)
}

func TestRegisterCLITools_ListTools(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Tools: true,
		},
	})

	app := &cli.App{}
	require.NoError(t, RegisterCLITools(srv, Dependencies{App: app}))

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range tools {
		if name, ok := tool["name"].(string); ok {
			names[name] = true
		}
	}
	for _, want := range []string{
		"cli.health", "cadence.stats",
		"comms.submit", "comms.list", "comms.history", "comms.get",
		"comms.reschedule", "comms.cancel", "comms.channels", "comms.signal",
	} {
		assert.True(t, names[want], "%s should be registered", want)
	}
}

func TestRegisterCLITools_RequiresApp(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{Name: "test", Version: "1.0.0"})
	assert.Error(t, RegisterCLITools(srv, Dependencies{}))
	assert.Error(t, RegisterCLITools(nil, Dependencies{App: &cli.App{}}))
}

func TestRegisterResourcesAndPrompts(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Resources: true,
			Prompts:   true,
		},
	})
	deps := Dependencies{App: &cli.App{}}
	assert.NoError(t, RegisterResources(srv, deps))
	assert.NoError(t, RegisterPrompts(srv, deps))
}

func TestRegister_RequiresApp(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{Name: "test", Version: "1.0.0"})
	assert.EqualError(t, Register(srv, Dependencies{}), "app is required")
}

func TestSubmitTool_ReportsConflictAsData(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	first, err := submitTool(ctx, app, submitInput{
		Recipient:     "c1",
		Channel:       "email",
		Priority:      "low",
		Message:       "hello",
		RequestedTime: "2024-06-04T14:00:00Z",
	})
	require.NoError(t, err)
	assert.False(t, first.Conflict)
	assert.Equal(t, "2024-06-04T14:00:00Z", first.ScheduledFor)

	second, err := submitTool(ctx, app, submitInput{
		Recipient:     "c1",
		Channel:       "email",
		Priority:      "low",
		RequestedTime: "2024-06-04T14:20:00Z",
	})
	require.NoError(t, err)
	assert.True(t, second.Conflict)
	assert.Equal(t, first.ID, second.ExistingID)

	_, err = submitTool(ctx, app, submitInput{Recipient: "c1", Channel: "email", RequestedTime: "tomorrow"})
	assert.Error(t, err)
}

func TestSignalTool_StaleRelationship(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	out, err := signalTool(ctx, app, signalInput{Kind: "relationship_stale", ContactID: "c1"})
	require.NoError(t, err)
	assert.NotEmpty(t, out["id"])

	live, err := app.ListLiveHandler.Handle(ctx, queries.ListLiveQuery{})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "relationship_maintenance", live[0].Type)
	assert.Equal(t, "medium", live[0].Priority)

	_, err = signalTool(ctx, app, signalInput{Kind: "unknown", ContactID: "c1"})
	assert.Error(t, err)
	_, err = signalTool(ctx, &cli.App{}, signalInput{Kind: "crisis", ContactID: "c1"})
	assert.Error(t, err)
}

func TestStatsTool(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	_, err := submitTool(ctx, app, submitInput{Recipient: "c1", Channel: "email", RequestedTime: "2024-06-04T14:00:00Z"})
	require.NoError(t, err)

	out, err := statsTool(ctx, app, statsInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Summary.Live)
	assert.Equal(t, 168, out.Summary.SinceHours)
	require.NotNil(t, out.Engine)
	assert.Equal(t, int64(1), out.Engine.Submitted)

	_, err = statsTool(ctx, &cli.App{}, statsInput{})
	assert.Error(t, err)
}

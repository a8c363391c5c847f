package cli

import (
	"context"
	"errors"

	internalApp "github.com/felixgeelhaar/cadence/internal/app"
	"github.com/felixgeelhaar/cadence/internal/communications/application/commands"
	"github.com/felixgeelhaar/cadence/internal/communications/application/queries"
	"github.com/felixgeelhaar/cadence/internal/communications/application/services"
	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/pkg/config"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/google/uuid"
)

// ErrNotInitialized is returned when a command needs the container but none was built.
var ErrNotInitialized = errors.New("cadence is not initialized; check the database and contacts configuration")

// SignalHandler turns an external trigger into a scheduled communication.
type SignalHandler interface {
	HandleSignal(ctx context.Context, sig domain.Signal) (uuid.UUID, error)
}

// Runtime is the background machinery started by serve.
type Runtime interface {
	Start(ctx context.Context) error
	Stop()
}

// App holds the CLI application dependencies.
type App struct {
	Config *config.Config

	// Command Handlers
	SubmitHandler     *commands.SubmitCommunicationHandler
	RescheduleHandler *commands.RescheduleCommunicationHandler
	CancelHandler     *commands.CancelCommunicationHandler

	// Query Handlers
	ListLiveHandler      *queries.ListLiveHandler
	ListHistoryHandler   *queries.ListHistoryHandler
	GetHandler           *queries.GetCommunicationHandler
	ChannelStatusHandler *queries.ChannelStatusHandler

	Signals SignalHandler
	Runtime Runtime
	Health  *observability.HealthRegistry
	Stats   func() services.EngineStats
}

// NewApp creates a CLI application backed by the container.
func NewApp(c *internalApp.Container) *App {
	a := &App{
		Config:               c.Config,
		SubmitHandler:        c.SubmitHandler,
		RescheduleHandler:    c.RescheduleHandler,
		CancelHandler:        c.CancelHandler,
		ListLiveHandler:      c.ListLiveHandler,
		ListHistoryHandler:   c.ListHistoryHandler,
		GetHandler:           c.GetHandler,
		ChannelStatusHandler: c.ChannelStatusHandler,
		Health:               c.Health,
		Runtime:              c,
	}
	if c.Loop != nil {
		a.Signals = c.Loop
	}
	if c.Engine != nil {
		a.Stats = c.Engine.Stats
	}
	return a
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}

// RequireApp returns the application or ErrNotInitialized.
func RequireApp() (*App, error) {
	if app == nil {
		return nil, ErrNotInitialized
	}
	return app, nil
}

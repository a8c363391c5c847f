package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/communications/application/services"
	"github.com/felixgeelhaar/mcp-go"
)

type statsInput struct {
	SinceHours int `json:"since_hours,omitempty"`
}

type statsOutput struct {
	Engine  *services.EngineStats `json:"engine,omitempty"`
	Summary cli.StatsReport       `json:"summary"`
}

func registerCoreTools(srv *mcp.Server, deps Dependencies) error {
	app := deps.App

	srv.Tool("cli.health").
		Description("Check database, broker and channel health").
		Handler(func(ctx context.Context, input struct{}) (map[string]any, error) {
			if app == nil {
				return nil, errors.New("app not initialized")
			}
			if app.Health == nil {
				return map[string]any{"status": "ok"}, nil
			}
			overall := app.Health.GetOverallHealth(ctx)
			return map[string]any{
				"status": string(overall.Status),
				"checks": overall.Checks,
			}, nil
		})

	srv.Tool("cadence.stats").
		Description("Pending communications and recent delivery outcomes").
		Handler(func(ctx context.Context, input statsInput) (*statsOutput, error) {
			return statsTool(ctx, app, input)
		})

	return nil
}

func statsTool(ctx context.Context, app *cli.App, input statsInput) (*statsOutput, error) {
	if app == nil || app.ListLiveHandler == nil || app.ListHistoryHandler == nil {
		return nil, errors.New("stats require database connection")
	}
	since := input.SinceHours
	if since <= 0 {
		since = 168
	}
	summary, err := cli.BuildStats(ctx, app, since)
	if err != nil {
		return nil, err
	}
	out := &statsOutput{Summary: summary}
	if app.Stats != nil {
		stats := app.Stats()
		out.Engine = &stats
	}
	return out, nil
}

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/adapter/cli/comms"
	"github.com/felixgeelhaar/cadence/adapter/cli/mcp"
	"github.com/felixgeelhaar/cadence/internal/app"
	"github.com/felixgeelhaar/cadence/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli.SetLogger(app.NewLogger(nil, cli.Version, false))
	cli.SetBootstrap(bootstrap)

	cli.AddCommand(comms.Cmd)
	cli.AddCommand(mcp.Cmd)

	cli.Execute(ctx)
}

// bootstrap loads configuration and builds the container for one command.
func bootstrap(ctx context.Context, configPath string, verbose bool) (*cli.App, func(), error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := app.NewLogger(cfg, cli.Version, verbose)
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("failed to initialize container, running in limited mode", "error", err)
			return nil, func() {}, nil
		}
		return nil, nil, err
	}
	return cli.NewApp(container), container.Close, nil
}

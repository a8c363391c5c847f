package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	mcpinternal "github.com/felixgeelhaar/cadence/internal/mcp"
	"github.com/spf13/cobra"
)

var withRuntime bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server on MCP_ADDR. With --runtime (the default) the
scheduler and orchestration loop run in the same process, so communications
submitted through MCP are delivered when due.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		if withRuntime && app.Runtime != nil {
			if err := app.Runtime.Start(ctx); err != nil {
				return err
			}
			defer app.Runtime.Stop()
		}

		err = mcpinternal.Serve(ctx, app.Config, app, cli.Version, cli.Logger())
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withRuntime, "runtime", true, "run the scheduler alongside the MCP server")
}

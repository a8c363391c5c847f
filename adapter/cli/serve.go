package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and orchestration loop until interrupted",
	Long: `Run the scheduling engine, the orchestration loop and, when a broker
is configured, the outbox relay and signal consumer. Stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		if a.Runtime == nil {
			return fmt.Errorf("serve requires the full runtime")
		}

		ctx := cmd.Context()
		if err := a.Runtime.Start(ctx); err != nil {
			return fmt.Errorf("start runtime: %w", err)
		}
		Logger().Info("cadence serving", "config", cfgFile)
		fmt.Fprintln(cmd.OutOrStdout(), "Cadence is running. Press Ctrl+C to stop.")

		<-ctx.Done()
		a.Runtime.Stop()
		Logger().Info("cadence stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database, broker and channel health",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		if a.Health == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		overall := a.Health.GetOverallHealth(ctx)
		if JSONOutput() {
			if err := PrintJSON(cmd.OutOrStdout(), overall); err != nil {
				return err
			}
		} else {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status: %s\n", overall.Status)
			names := make([]string, 0, len(overall.Checks))
			for name := range overall.Checks {
				names = append(names, name)
			}
			sort.Strings(names)
			table := NewTable(out)
			for _, name := range names {
				result := overall.Checks[name]
				fmt.Fprintf(table, "  %s\t%s\t%s\n", name, result.Status, result.Message)
			}
			if err := table.Flush(); err != nil {
				return err
			}
		}
		if overall.Status == observability.HealthStatusUnhealthy {
			return fmt.Errorf("unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

package comms

import (
	"fmt"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/communications/application/queries"
	"github.com/spf13/cobra"
)

var (
	historyRecipient  string
	historyStatus     string
	historySinceHours int
	historyLimit      int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List delivered and failed communications",
	Long: `List communications that reached a terminal state, newest first.

Examples:
  cadence comms history
  cadence comms history --status failed --since-hours 24`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		switch historyStatus {
		case "", "succeeded", "failed":
		default:
			return fmt.Errorf("invalid status %q: use succeeded or failed", historyStatus)
		}

		comms, err := app.ListHistoryHandler.Handle(cmd.Context(), queries.ListHistoryQuery{
			Recipient:  historyRecipient,
			Status:     historyStatus,
			SinceHours: historySinceHours,
			Limit:      historyLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}

		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), comms)
		}
		if len(comms) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No communication history.")
			return nil
		}
		return printTable(cmd.OutOrStdout(), comms)
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyRecipient, "recipient", "r", "", "only this recipient")
	historyCmd.Flags().StringVarP(&historyStatus, "status", "s", "", "succeeded or failed")
	historyCmd.Flags().IntVar(&historySinceHours, "since-hours", 0, "only the last N hours")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum rows")
}

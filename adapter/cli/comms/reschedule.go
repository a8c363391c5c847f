package comms

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/communications/application/commands"
	"github.com/spf13/cobra"
)

var rescheduleAt string

var rescheduleCmd = &cobra.Command{
	Use:   "reschedule <communication-id>",
	Short: "Move a pending communication",
	Long: `Move a pending communication to a new requested time. The scheduling
rules run again, so the final slot may differ from --at.

Examples:
  cadence comms reschedule 550e8400-e29b-41d4-a716-446655440000 --at +1h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if rescheduleAt == "" {
			return errors.New("--at is required")
		}
		requested, err := parseWhen(rescheduleAt, time.Now())
		if err != nil {
			return err
		}

		result, err := app.RescheduleHandler.Handle(cmd.Context(), commands.RescheduleCommunicationCommand{
			ID:            id,
			RequestedTime: requested,
		})
		if err != nil {
			return fmt.Errorf("failed to reschedule communication: %w", err)
		}

		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Communication %s rescheduled for %s\n",
			result.ID, result.ScheduledFor.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rescheduleCmd.Flags().StringVar(&rescheduleAt, "at", "", "new requested time")
}

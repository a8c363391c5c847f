package comms

import (
	"fmt"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/communications/application/commands"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:     "cancel <communication-id>",
	Short:   "Cancel a pending communication",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		if err := app.CancelHandler.Handle(cmd.Context(), commands.CancelCommunicationCommand{ID: id}); err != nil {
			return fmt.Errorf("failed to cancel communication: %w", err)
		}

		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), map[string]string{"id": id.String(), "status": "canceled"})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Communication %s canceled\n", id)
		return nil
	},
}

package comms

import (
	"fmt"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/communications/application/queries"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <communication-id>",
	Short: "Show one communication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		c, err := app.GetHandler.Handle(cmd.Context(), queries.GetCommunicationQuery{ID: id})
		if err != nil {
			return fmt.Errorf("failed to get communication: %w", err)
		}

		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), c)
		}
		printCommunication(cmd.OutOrStdout(), *c)
		return nil
	},
}

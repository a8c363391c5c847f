package comms

import (
	"fmt"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:     "channels",
	Short:   "Show delivery channel connectivity",
	Aliases: []string{"status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		status, err := app.ChannelStatusHandler.Handle(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get channel status: %w", err)
		}

		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), status)
		}
		table := cli.NewTable(cmd.OutOrStdout())
		fmt.Fprintln(table, "CHANNEL\tSTATE")
		for _, s := range status {
			state := "disconnected"
			if s.Connected {
				state = "connected"
			}
			fmt.Fprintf(table, "%s\t%s\n", s.Channel, state)
		}
		return table.Flush()
	},
}

package comms

import (
	"fmt"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/communications/application/queries"
	"github.com/spf13/cobra"
)

var (
	listRecipient string
	listChannel   string
	listInFlight  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending communications",
	Long: `List communications waiting to be sent, earliest first.

Examples:
  cadence comms list
  cadence comms list --recipient c1 --in-flight`,
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		comms, err := app.ListLiveHandler.Handle(cmd.Context(), queries.ListLiveQuery{
			Recipient:       listRecipient,
			Channel:         listChannel,
			IncludeInFlight: listInFlight,
		})
		if err != nil {
			return fmt.Errorf("failed to list communications: %w", err)
		}

		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), comms)
		}
		if len(comms) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending communications.")
			return nil
		}
		return printTable(cmd.OutOrStdout(), comms)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listRecipient, "recipient", "r", "", "only this recipient")
	listCmd.Flags().StringVar(&listChannel, "channel", "", "only this channel")
	listCmd.Flags().BoolVar(&listInFlight, "in-flight", false, "include communications being delivered")
}

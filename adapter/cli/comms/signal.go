package comms

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/spf13/cobra"
)

var (
	signalChannel string
	signalSummary string
)

var signalCmd = &cobra.Command{
	Use:   "signal <crisis|relationship_stale> <contact-id>",
	Short: "Raise a trigger for a contact",
	Long: `Raise a trigger that the orchestration loop answers immediately.
A crisis schedules a high-priority crisis response; a stale relationship
schedules a medium-priority maintenance message.

Examples:
  cadence comms signal crisis c1 --summary "mentioned a hospital visit"
  cadence comms signal relationship_stale c2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		if app.Signals == nil {
			return errors.New("signals require the orchestration loop")
		}

		kind := domain.SignalKind(args[0])
		switch kind {
		case domain.SignalCrisis, domain.SignalRelationshipStale:
		default:
			return fmt.Errorf("unknown signal %q: use crisis or relationship_stale", args[0])
		}
		var channel domain.Channel
		if signalChannel != "" {
			if channel, err = domain.ParseChannel(signalChannel); err != nil {
				return err
			}
		}

		id, err := app.Signals.HandleSignal(cmd.Context(), domain.Signal{
			Kind:       kind,
			ContactID:  args[1],
			Channel:    channel,
			Summary:    signalSummary,
			DetectedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to handle signal: %w", err)
		}

		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), map[string]string{"id": id.String(), "signal": string(kind)})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signal %s scheduled communication %s\n", kind, id)
		return nil
	},
}

func init() {
	signalCmd.Flags().StringVar(&signalChannel, "channel", "", "override the contact's preferred channel")
	signalCmd.Flags().StringVar(&signalSummary, "summary", "", "what was detected")
}

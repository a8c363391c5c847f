package comms

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/communications/application/commands"
	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/spf13/cobra"
)

var (
	submitChannel   string
	submitType      string
	submitPriority  string
	submitMessage   string
	submitReasoning string
	submitAt        string
	submitReplace   bool
	submitContext   map[string]string
)

var submitCmd = &cobra.Command{
	Use:   "submit <recipient>",
	Short: "Schedule a communication",
	Long: `Submit a communication for scheduling. The requested time is moved
by priority, availability, channel, spacing and business-day rules; the
resulting slot is printed.

A communication for the same recipient and channel within the collision
window is rejected unless --replace is given.

Examples:
  cadence comms submit c1 --channel email --message "Happy birthday!" --type celebration
  cadence comms submit c1 --channel sms --priority high --at +2h
  cadence comms submit c1 --channel chat --at "2024-06-04 14:00" --replace`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		requested, err := parseWhen(submitAt, time.Now())
		if err != nil {
			return err
		}
		var extra map[string]any
		if len(submitContext) > 0 {
			extra = make(map[string]any, len(submitContext))
			for k, v := range submitContext {
				extra[k] = v
			}
		}

		result, err := app.SubmitHandler.Handle(cmd.Context(), commands.SubmitCommunicationCommand{
			Recipient:       args[0],
			Channel:         submitChannel,
			Type:            submitType,
			Priority:        submitPriority,
			Message:         submitMessage,
			Reasoning:       submitReasoning,
			RequestedTime:   requested,
			Context:         extra,
			ReplaceExisting: submitReplace,
		})
		if err != nil {
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				return fmt.Errorf("%w (use --replace to supersede it)", err)
			}
			return fmt.Errorf("failed to submit communication: %w", err)
		}

		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), result)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Communication scheduled!")
		fmt.Fprintln(out, strings.Repeat("-", 40))
		fmt.Fprintf(out, "  ID:        %s\n", result.ID)
		fmt.Fprintf(out, "  Scheduled: %s\n", result.ScheduledFor.Format(time.RFC3339))
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitChannel, "channel", "", "delivery channel ("+channelNames()+")")
	submitCmd.Flags().StringVarP(&submitType, "type", "t", "", "communication type (default manual)")
	submitCmd.Flags().StringVarP(&submitPriority, "priority", "p", "", "priority: urgent, high, medium, low (default medium)")
	submitCmd.Flags().StringVarP(&submitMessage, "message", "m", "", "message body")
	submitCmd.Flags().StringVar(&submitReasoning, "reasoning", "", "why this communication is being sent")
	submitCmd.Flags().StringVar(&submitAt, "at", "", "requested time (default now)")
	submitCmd.Flags().BoolVar(&submitReplace, "replace", false, "replace a colliding communication")
	submitCmd.Flags().StringToStringVar(&submitContext, "context", nil, "extra key=value context")
	_ = submitCmd.MarkFlagRequired("channel")
}

func channelNames() string {
	names := make([]string, 0, len(domain.AllChannels()))
	for _, ch := range domain.AllChannels() {
		names = append(names, string(ch))
	}
	return strings.Join(names, ", ")
}

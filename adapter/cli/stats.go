package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/felixgeelhaar/cadence/internal/communications/application/queries"
	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/spf13/cobra"
)

var statsSinceHours int

// StatsReport summarizes the schedule and recent delivery results.
type StatsReport struct {
	Live       int            `json:"live"`
	InFlight   int            `json:"in_flight"`
	SinceHours int            `json:"since_hours"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	ByChannel  map[string]int `json:"by_channel"`
	Retries    int            `json:"retries"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show schedule and delivery statistics",
	Long: `Display the number of pending communications and a breakdown of
delivery outcomes over a recent window.

Examples:
  cadence stats
  cadence stats --since-hours 24`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		report, err := BuildStats(cmd.Context(), a, statsSinceHours)
		if err != nil {
			return err
		}
		if JSONOutput() {
			return PrintJSON(cmd.OutOrStdout(), report)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Cadence stats")
		fmt.Fprintln(out, strings.Repeat("=", 40))
		fmt.Fprintf(out, "  Pending:    %d\n", report.Live)
		fmt.Fprintf(out, "  In flight:  %d\n", report.InFlight)
		fmt.Fprintf(out, "\n  Last %dh\n", report.SinceHours)
		fmt.Fprintf(out, "  Succeeded:  %d\n", report.Succeeded)
		fmt.Fprintf(out, "  Failed:     %d\n", report.Failed)
		fmt.Fprintf(out, "  Retries:    %d\n", report.Retries)
		channels := make([]string, 0, len(report.ByChannel))
		for ch := range report.ByChannel {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
		for _, ch := range channels {
			fmt.Fprintf(out, "    %-16s %d\n", ch, report.ByChannel[ch])
		}
		return nil
	},
}

// BuildStats assembles a StatsReport from the live set and history.
func BuildStats(ctx context.Context, a *App, sinceHours int) (StatsReport, error) {
	report := StatsReport{SinceHours: sinceHours, ByChannel: map[string]int{}}

	live, err := a.ListLiveHandler.Handle(ctx, queries.ListLiveQuery{IncludeInFlight: true})
	if err != nil {
		return report, fmt.Errorf("list pending: %w", err)
	}
	for _, c := range live {
		if c.Status == string(domain.StatusDue) {
			report.InFlight++
		} else {
			report.Live++
		}
	}

	history, err := a.ListHistoryHandler.Handle(ctx, queries.ListHistoryQuery{SinceHours: sinceHours})
	if err != nil {
		return report, fmt.Errorf("list history: %w", err)
	}
	for _, c := range history {
		switch c.Status {
		case string(domain.StatusSucceeded):
			report.Succeeded++
		case string(domain.StatusFailed):
			report.Failed++
		}
		report.ByChannel[c.Channel]++
		report.Retries += c.RetryCount
	}
	return report, nil
}

func init() {
	statsCmd.Flags().IntVar(&statsSinceHours, "since-hours", 168, "history window in hours")
	rootCmd.AddCommand(statsCmd)
}

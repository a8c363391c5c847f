// Package comms holds the communication scheduling commands.
package comms

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/communications/application/queries"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Cmd is the comms command group.
var Cmd = &cobra.Command{
	Use:     "comms",
	Short:   "Schedule and inspect outgoing communications",
	Aliases: []string{"c"},
}

func init() {
	Cmd.AddCommand(submitCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(historyCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(rescheduleCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(channelsCmd)
	Cmd.AddCommand(signalCmd)
}

func parseID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid communication ID: %w", err)
	}
	return id, nil
}

// parseWhen accepts an RFC 3339 timestamp, "YYYY-MM-DD HH:MM" in local time,
// "now", or a Go duration offset such as "+2h".
func parseWhen(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return time.Time{}, nil
	case value == "now":
		return now, nil
	case strings.HasPrefix(value, "+"):
		d, err := time.ParseDuration(value[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid offset %q: %w", value, err)
		}
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", value, now.Location()); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339, \"YYYY-MM-DD HH:MM\", \"now\" or \"+<duration>\"", value)
}

func printCommunication(w io.Writer, c queries.CommunicationDTO) {
	fmt.Fprintf(w, "  ID:         %s\n", c.ID)
	fmt.Fprintf(w, "  Recipient:  %s\n", c.Recipient)
	fmt.Fprintf(w, "  Channel:    %s\n", c.Channel)
	fmt.Fprintf(w, "  Type:       %s\n", c.Type)
	fmt.Fprintf(w, "  Priority:   %s\n", c.Priority)
	fmt.Fprintf(w, "  Status:     %s\n", c.Status)
	fmt.Fprintf(w, "  Scheduled:  %s\n", c.ScheduledFor.Format(time.RFC3339))
	if c.Message != "" {
		fmt.Fprintf(w, "  Message:    %s\n", c.Message)
	}
	if c.Reasoning != "" {
		fmt.Fprintf(w, "  Reasoning:  %s\n", c.Reasoning)
	}
	if c.RetryCount > 0 {
		fmt.Fprintf(w, "  Retries:    %d\n", c.RetryCount)
	}
	if c.LastError != "" {
		fmt.Fprintf(w, "  Last error: %s\n", c.LastError)
	}
	if c.ExternalID != "" {
		fmt.Fprintf(w, "  External:   %s\n", c.ExternalID)
	}
}

func printTable(w io.Writer, comms []queries.CommunicationDTO) error {
	table := cli.NewTable(w)
	fmt.Fprintln(table, "ID\tRECIPIENT\tCHANNEL\tTYPE\tPRIORITY\tSTATUS\tSCHEDULED")
	for _, c := range comms {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID.String()[:8], c.Recipient, c.Channel, c.Type, c.Priority, c.Status,
			c.ScheduledFor.Format("2006-01-02 15:04"))
	}
	return table.Flush()
}

package delivery

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
)

// SimulatedSender stands in for a channel with no platform integration.
// In pass-through mode every send succeeds with a placeholder id; otherwise
// every send fails with ChannelUnavailableError.
type SimulatedSender struct {
	channel     domain.Channel
	passThrough bool
	reason      string
	logger      *slog.Logger
}

// NewSimulatedSender creates a stand-in sender for a channel.
func NewSimulatedSender(channel domain.Channel, passThrough bool, reason string, logger *slog.Logger) *SimulatedSender {
	if logger == nil {
		logger = slog.Default()
	}
	if reason == "" {
		reason = "no platform integration configured"
	}
	return &SimulatedSender{
		channel:     channel,
		passThrough: passThrough,
		reason:      reason,
		logger:      logger,
	}
}

func (s *SimulatedSender) Channel() domain.Channel { return s.channel }

// Simulated reports whether successful sends are placeholders.
func (s *SimulatedSender) Simulated() bool { return s.passThrough }

func (s *SimulatedSender) Send(ctx context.Context, msg Message) (string, error) {
	if !s.passThrough {
		return "", &domain.ChannelUnavailableError{Channel: s.channel, Reason: s.reason}
	}
	s.logger.Warn("simulated delivery, nothing was sent",
		"channel", s.channel,
		"communication_id", msg.CommunicationID,
		"recipient", msg.Recipient,
	)
	return "sim-" + msg.CommunicationID.String(), nil
}

func (s *SimulatedSender) Probe(ctx context.Context) error {
	if !s.passThrough {
		return &domain.ChannelUnavailableError{Channel: s.channel, Reason: s.reason}
	}
	return nil
}

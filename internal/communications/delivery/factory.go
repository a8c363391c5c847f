package delivery

import (
	"log/slog"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
)

// SendersConfig carries the credentials of every platform integration.
type SendersConfig struct {
	Gmail    GmailConfig
	Telegram TelegramConfig
	Slack    SlackConfig

	// SimulateUnwired makes channels without an integration succeed with a
	// placeholder id instead of failing with ChannelUnavailableError.
	SimulateUnwired bool
}

// BuildSenders returns one sender per channel. Channels whose credentials are
// missing, and channels with no integration at all, get a SimulatedSender.
func BuildSenders(cfg SendersConfig, logger *slog.Logger) []Sender {
	if logger == nil {
		logger = slog.Default()
	}

	senders := make([]Sender, 0, len(domain.AllChannels()))
	for _, ch := range domain.AllChannels() {
		var s Sender
		switch ch {
		case domain.ChannelEmail:
			if cfg.Gmail.Configured() {
				s = NewGmailSender(cfg.Gmail, logger)
			}
		case domain.ChannelChat:
			if cfg.Telegram.Token != "" {
				s = NewTelegramSender(cfg.Telegram, logger)
			}
		case domain.ChannelEnterpriseChat:
			if cfg.Slack.BotToken != "" {
				s = NewSlackSender(cfg.Slack, logger)
			}
		}
		if s == nil {
			reason := "no platform integration"
			switch ch {
			case domain.ChannelEmail, domain.ChannelChat, domain.ChannelEnterpriseChat:
				reason = "credentials not configured"
			}
			logger.Warn("delivery channel is simulated",
				"channel", ch,
				"reason", reason,
				"pass_through", cfg.SimulateUnwired,
			)
			s = NewSimulatedSender(ch, cfg.SimulateUnwired, reason, logger)
		}
		senders = append(senders, s)
	}
	return senders
}

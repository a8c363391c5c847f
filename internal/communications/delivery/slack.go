package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/slack-go/slack"
)

const slackMaxMsgLen = 4000

// SlackConfig configures the enterprise chat sender.
type SlackConfig struct {
	BotToken string
	// APIURL overrides the Web API base URL, e.g. for tests.
	APIURL string
}

// SlackSender delivers enterprise chat messages through the Slack Web API.
type SlackSender struct {
	client *slack.Client
	logger *slog.Logger
}

// NewSlackSender creates a Slack sender.
func NewSlackSender(cfg SlackConfig, logger *slog.Logger) *SlackSender {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []slack.Option{}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &SlackSender{
		client: slack.New(cfg.BotToken, opts...),
		logger: logger,
	}
}

func (s *SlackSender) Channel() domain.Channel { return domain.ChannelEnterpriseChat }

// Send posts to the resolved address, which may be a channel id or a user id.
// Long bodies are posted as several messages. The returned id is
// "<channel>:<timestamp>" of the first one.
func (s *SlackSender) Send(ctx context.Context, msg Message) (string, error) {
	var firstID string
	chunks := splitMessage(msg.Body, slackMaxMsgLen)
	for i, chunk := range chunks {
		channelID, ts, err := s.client.PostMessageContext(ctx, msg.Address, slack.MsgOptionText(chunk, false))
		if err != nil {
			return firstID, fmt.Errorf("slack post message part %d/%d: %w", i+1, len(chunks), err)
		}
		if i == 0 {
			firstID = channelID + ":" + ts
		}
	}
	return firstID, nil
}

func (s *SlackSender) Probe(ctx context.Context) error {
	resp, err := s.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.logger.Debug("slack bot authenticated", "user", resp.User, "team", resp.Team)
	return nil
}

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen = 4000
	// defaultTelegramTimeout bounds every Bot API call; the library takes no context.
	defaultTelegramTimeout = 30 * time.Second
)

// TelegramConfig configures the chat sender.
type TelegramConfig struct {
	Token string
	// APIEndpoint overrides the Bot API endpoint format, e.g. for tests.
	APIEndpoint string
	// Timeout bounds each Bot API request. Zero means 30s.
	Timeout time.Duration
}

// TelegramSender delivers chat messages through the Telegram Bot API.
// The bot connects lazily on the first probe or send.
type TelegramSender struct {
	cfg    TelegramConfig
	logger *slog.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramSender creates a Telegram sender.
func NewTelegramSender(cfg TelegramConfig, logger *slog.Logger) *TelegramSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramSender{cfg: cfg, logger: logger}
}

func (t *TelegramSender) Channel() domain.Channel { return domain.ChannelChat }

func (t *TelegramSender) connect() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}

	endpoint := t.cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := t.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTelegramTimeout
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)
	t.bot = bot
	return bot, nil
}

func (t *TelegramSender) Send(ctx context.Context, msg Message) (string, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.Address), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram chat id %q: %w", msg.Address, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bot, err := t.connect()
	if err != nil {
		return "", err
	}

	// The first message id identifies a multi-part delivery.
	var firstID string
	chunks := splitMessage(msg.Body, telegramMaxMsgLen)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return firstID, err
		}
		sent, err := bot.Send(tgbotapi.NewMessage(chatID, chunk))
		if err != nil {
			return firstID, fmt.Errorf("telegram send part %d/%d: %w", i+1, len(chunks), err)
		}
		if i == 0 {
			firstID = strconv.Itoa(sent.MessageID)
		}
	}
	if len(chunks) > 1 {
		t.logger.Debug("telegram message split", "chat_id", chatID, "parts", len(chunks))
	}
	return firstID, nil
}

func (t *TelegramSender) Probe(ctx context.Context) error {
	bot, err := t.connect()
	if err != nil {
		return err
	}
	if _, err := bot.GetMe(); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	return nil
}

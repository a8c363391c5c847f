package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"golang.org/x/oauth2"
)

const (
	defaultGmailBaseURL  = "https://gmail.googleapis.com/gmail/v1"
	defaultGmailTokenURL = "https://oauth2.googleapis.com/token"
	defaultGmailAuthURL  = "https://accounts.google.com/o/oauth2/auth"
)

// GmailConfig holds the OAuth client and refresh token used to send mail.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Sender       string
	BaseURL      string
	TokenURL     string
}

// Configured reports whether enough credentials are present to send mail.
func (c GmailConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// GmailSender delivers email through the Gmail REST API.
type GmailSender struct {
	source  oauth2.TokenSource
	sender  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGmailSender creates a sender that refreshes access tokens from the configured refresh token.
func NewGmailSender(cfg GmailConfig, logger *slog.Logger) *GmailSender {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultGmailTokenURL
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  defaultGmailAuthURL,
			TokenURL: tokenURL,
		},
		Scopes: []string{"https://www.googleapis.com/auth/gmail.send"},
	}
	source := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return NewGmailSenderWithTokenSource(source, cfg.Sender, cfg.BaseURL, logger)
}

// NewGmailSenderWithTokenSource creates a sender from an existing token source.
func NewGmailSenderWithTokenSource(source oauth2.TokenSource, sender, baseURL string, logger *slog.Logger) *GmailSender {
	if baseURL == "" {
		baseURL = defaultGmailBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GmailSender{
		source:  source,
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &oauthTransport{
				base:   http.DefaultTransport,
				source: source,
			},
		},
		logger: logger,
	}
}

func (s *GmailSender) Channel() domain.Channel { return domain.ChannelEmail }

type gmailMessage struct {
	ID       string `json:"id,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	Raw      string `json:"raw,omitempty"`
}

func (s *GmailSender) Send(ctx context.Context, msg Message) (string, error) {
	if !strings.Contains(msg.Address, "@") {
		return "", fmt.Errorf("recipient %q has no email address", msg.Recipient)
	}

	raw, err := encodeRFC2822(s.sender, msg)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(gmailMessage{Raw: raw})
	if err != nil {
		return "", err
	}

	url := s.baseURL + "/users/me/messages/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", responseError("gmail send", resp)
	}

	var sent gmailMessage
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return "", fmt.Errorf("decode gmail response: %w", err)
	}
	return sent.ID, nil
}

// Probe fetches the mailbox profile, which exercises the token refresh.
func (s *GmailSender) Probe(ctx context.Context) error {
	token, err := s.source.Token()
	if err != nil {
		s.logger.Warn("oauth token refresh failed", "error", err)
		return err
	}
	if !token.Expiry.IsZero() && time.Until(token.Expiry) < 5*time.Minute {
		s.logger.Warn("oauth token nearing expiry", "expires_at", token.Expiry)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/users/me/profile", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError("gmail profile", resp)
	}
	return nil
}

// encodeRFC2822 builds the raw message. Header values come from contact data
// and message context, so line breaks are rejected and the subject is
// RFC 2047 encoded.
func encodeRFC2822(from string, msg Message) (string, error) {
	for name, value := range map[string]string{"From": from, "To": msg.Address, "Subject": msg.Subject} {
		if strings.ContainsAny(value, "\r\n") {
			return "", fmt.Errorf("%s header contains a line break", name)
		}
	}
	to, err := mail.ParseAddress(msg.Address)
	if err != nil {
		return "", fmt.Errorf("invalid recipient address %q: %w", msg.Address, err)
	}
	toHeader := to.Address
	if to.Name != "" {
		toHeader = to.String()
	}

	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", toHeader)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	fmt.Fprintf(&b, "X-Cadence-ID: %s\r\n", msg.CommunicationID)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return base64.RawURLEncoding.EncodeToString([]byte(b.String())), nil
}

type oauthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return t.base.RoundTrip(req)
}

func responseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s failed: status=%d body=%s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}

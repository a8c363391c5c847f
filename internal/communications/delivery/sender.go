package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
)

// Message is the platform-neutral payload handed to a Sender.
type Message struct {
	CommunicationID uuid.UUID
	Channel         domain.Channel
	Recipient       string
	Address         string
	Subject         string
	Body            string
}

// Sender delivers messages over one channel.
type Sender interface {
	// Channel returns the channel this sender serves.
	Channel() domain.Channel

	// Send delivers the message and returns the platform's message id.
	Send(ctx context.Context, msg Message) (string, error)

	// Probe checks that the platform is reachable with the configured credentials.
	Probe(ctx context.Context) error
}

// simulator is implemented by senders with no real platform behind them.
type simulator interface {
	Simulated() bool
}

// AddressResolver maps a recipient to a platform address for a channel.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, recipient string, channel domain.Channel) (string, bool)
}

// NewMessage builds the outgoing message for a communication.
// The address comes from the communication's "address" context key, then the
// resolver, and falls back to the recipient itself.
func NewMessage(ctx context.Context, c *domain.Communication, resolver AddressResolver) Message {
	msg := Message{
		CommunicationID: c.ID,
		Channel:         c.Channel,
		Recipient:       c.Recipient,
		Address:         c.Recipient,
		Subject:         subjectFor(c),
		Body:            c.Message,
	}

	if addr, ok := contextString(c.Context, "address"); ok {
		msg.Address = addr
	} else if resolver != nil {
		if addr, ok := resolver.ResolveAddress(ctx, c.Recipient, c.Channel); ok {
			msg.Address = addr
		}
	}

	if msg.Body == "" {
		msg.Body = fmt.Sprintf("Hi %s, just checking in.", c.Recipient)
	}
	return msg
}

func subjectFor(c *domain.Communication) string {
	if subject, ok := contextString(c.Context, "subject"); ok {
		return subject
	}
	switch c.Type {
	case domain.TypeFollowUp:
		return "Following up"
	case domain.TypeCelebration:
		return "Congratulations"
	case domain.TypeCrisisResponse:
		return "Checking in"
	case domain.TypeRelationshipMaintenance:
		return "It has been a while"
	case domain.TypeContentShare:
		return "Thought you might find this interesting"
	default:
		return "A note for you"
	}
}

func contextString(values map[string]any, key string) (string, bool) {
	raw, ok := values[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

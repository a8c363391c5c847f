package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Publisher implements eventbus.Publisher by storing envelopes in the outbox.
// A Processor relays them to the broker, so an unreachable broker never
// loses an event or blocks the caller.
type Publisher struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates an outbox-backed publisher.
func NewPublisher(repo Repository, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{repo: repo, logger: logger, now: time.Now}
}

// Publish records the envelope for later relay.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	msg, err := NewMessage(routingKey, payload, p.now())
	if err != nil {
		return err
	}
	if err := p.repo.Save(ctx, msg); err != nil {
		return err
	}
	p.logger.Debug("event stored in outbox",
		"routing_key", routingKey,
		"event_id", msg.EventID,
	)
	return nil
}

// Close is a no-op; the repository's connection is owned elsewhere.
func (p *Publisher) Close() error {
	return nil
}

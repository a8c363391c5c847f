package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FanOutPublisher hands every envelope to each publisher in order, such as
// the in-process bus followed by the outbox.
type FanOutPublisher struct {
	publishers []Publisher
	logger     *slog.Logger
}

func NewFanOutPublisher(logger *slog.Logger, publishers ...Publisher) *FanOutPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FanOutPublisher{publishers: publishers, logger: logger}
}

// Publish tries every publisher even after a failure and joins the errors.
func (p *FanOutPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	var errs []error
	for i, pub := range p.publishers {
		if err := pub.Publish(ctx, routingKey, payload); err != nil {
			p.logger.WarnContext(ctx, "fan-out publish failed", "routing_key", routingKey, "target", i, "error", err)
			errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (p *FanOutPublisher) Close() error {
	var errs []error
	for _, pub := range p.publishers {
		errs = append(errs, pub.Close())
	}
	return errors.Join(errs...)
}

package eventbus

import "context"

// Publisher moves encoded envelopes to subscribers. The in-process bus, the
// outbox writer and the RabbitMQ exchange all implement it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

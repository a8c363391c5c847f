package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
)

// EventTypes lists the routing keys the loop consumes.
func (l *Loop) EventTypes() []string {
	return []string{
		domain.RoutingKeyDue,
		domain.RoutingKeyExecutionFailed,
		domain.RoutingKeyCrisisDetected,
		domain.RoutingKeyRelationshipStale,
	}
}

// Handle reacts to engine lifecycle events and trigger signals.
// Due communications are delivered asynchronously so the publisher is never blocked.
func (l *Loop) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	switch event.RoutingKey {
	case domain.RoutingKeyDue:
		payload, err := decodeCommunication(event)
		if err != nil {
			return err
		}
		l.dispatch(ctx, payload.Communication)
		return nil

	case domain.RoutingKeyExecutionFailed:
		payload, err := decodeCommunication(event)
		if err != nil {
			return err
		}
		l.deps.Notifier.NotifyFailure(ctx, payload.Communication, payload.Error)
		return nil

	case domain.RoutingKeyCrisisDetected, domain.RoutingKeyRelationshipStale:
		var sig domain.Signal
		if err := event.Decode(&sig); err != nil {
			return fmt.Errorf("decode signal: %w", err)
		}
		if sig.Kind == "" {
			sig.Kind = signalKindFor(event.RoutingKey)
		}
		if _, err := l.HandleSignal(ctx, sig); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				l.logger.Info("trigger conflicts with a scheduled communication",
					"kind", sig.Kind,
					"contact_id", sig.ContactID,
				)
				return nil
			}
			return err
		}
		return nil

	default:
		return nil
	}
}

func decodeCommunication(event *eventbus.ConsumedEvent) (domain.EventPayload, error) {
	var payload domain.EventPayload
	if err := event.Decode(&payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", event.RoutingKey, err)
	}
	if payload.Communication == nil {
		return payload, fmt.Errorf("%s event %s has no communication", event.RoutingKey, event.EventID)
	}
	return payload, nil
}

func signalKindFor(routingKey string) domain.SignalKind {
	if routingKey == domain.RoutingKeyCrisisDetected {
		return domain.SignalCrisis
	}
	return domain.SignalRelationshipStale
}

// PublishSignal puts a signal on the bus under its routing key.
func PublishSignal(ctx context.Context, publisher eventbus.Publisher, sig domain.Signal) error {
	key := domain.RoutingKeyRelationshipStale
	if sig.Kind == domain.SignalCrisis {
		key = domain.RoutingKeyCrisisDetected
	}
	data, err := eventbus.NewRawEnvelope(key, sig)
	if err != nil {
		return err
	}
	return publisher.Publish(ctx, key, data)
}

// SignalConsumer exposes only the trigger routing keys, for registration on
// an external broker. Lifecycle events stay on the in-process bus because
// the in-flight set they refer to lives in this process.
func (l *Loop) SignalConsumer() eventbus.EventConsumer {
	return signalConsumer{loop: l}
}

type signalConsumer struct {
	loop *Loop
}

func (s signalConsumer) EventTypes() []string {
	return []string{domain.RoutingKeyCrisisDetected, domain.RoutingKeyRelationshipStale}
}

func (s signalConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	return s.loop.Handle(ctx, event)
}

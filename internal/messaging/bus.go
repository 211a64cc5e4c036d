// Package messaging connects the pipeline to Azure Service Bus. Each
// event name is a topic; consumers read from a shared subscription.
package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/config"
	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/metrics"
)

// EventStore keeps an audit copy of published events.
type EventStore interface {
	Append(ctx context.Context, ev events.Event, payload []byte) error
}

// Bus publishes and consumes envelope events over Azure Service Bus.
type Bus struct {
	client       *azservicebus.Client
	subscription string
	store        EventStore
	metrics      *metrics.Metrics

	mu      sync.Mutex
	senders map[string]*azservicebus.Sender
}

// NewBus creates a service bus connection from configuration. The
// event store is optional; pass nil to skip audit persistence.
func NewBus(cfg config.AzureConfig, store EventStore, m *metrics.Metrics) (*Bus, error) {
	if cfg.ConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating Service Bus client")
	}

	return &Bus{
		client:       client,
		subscription: cfg.Subscription,
		store:        store,
		metrics:      m,
		senders:      make(map[string]*azservicebus.Sender),
	}, nil
}

// Publish serializes the event into its envelope and sends it on the
// topic named after the event. Audit store failures are logged but do
// not fail the publish.
func (b *Bus) Publish(ctx context.Context, ev events.Event) error {
	payload, err := events.Marshal(ev)
	if err != nil {
		return err
	}

	sender, err := b.senderFor(ev.EventName())
	if err != nil {
		return err
	}

	msgID := ev.EventID()
	msg := &azservicebus.Message{
		Body:      payload,
		MessageID: &msgID,
		ApplicationProperties: map[string]interface{}{
			"source": "core-service",
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	if err := sender.SendMessage(ctx, msg, nil); err != nil {
		b.metrics.RecordError("bus_publish")
		return errors.Wrapf(err, "publishing %s", ev.EventName())
	}
	b.metrics.RecordSuccess("bus_publish")
	b.metrics.IncrementCounter("events_published")

	if b.store != nil {
		if err := b.store.Append(ctx, ev, payload); err != nil {
			log.Error().Err(err).Str("event_id", ev.EventID()).Msg("Failed to persist event audit record")
		}
	}
	return nil
}

func (b *Bus) senderFor(topic string) (*azservicebus.Sender, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sender, ok := b.senders[topic]; ok {
		return sender, nil
	}
	sender, err := b.client.NewSender(topic, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "creating sender for topic %s", topic)
	}
	b.senders[topic] = sender
	return sender, nil
}

// Consume reads one topic until the context is canceled. Messages are
// completed on success, dead-lettered when they cannot be decoded and
// abandoned on handler errors so the broker redelivers them.
func (b *Bus) Consume(ctx context.Context, topic string, dispatcher *Dispatcher) error {
	receiver, err := b.client.NewReceiverForSubscription(topic, b.subscription, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return errors.Wrapf(err, "creating receiver for topic %s", topic)
	}
	defer receiver.Close(context.Background())

	log.Info().Str("topic", topic).Str("subscription", b.subscription).Msg("Consuming topic")

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := receiver.ReceiveMessages(ctx, 1, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("topic", topic).Msg("Receive failed, backing off")
			b.metrics.RecordError("bus_receive")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			b.handleMessage(ctx, receiver, topic, msg, dispatcher)
		}
	}
}

func (b *Bus) handleMessage(ctx context.Context, receiver *azservicebus.Receiver, topic string, msg *azservicebus.ReceivedMessage, dispatcher *Dispatcher) {
	start := time.Now()

	err := dispatcher.Dispatch(ctx, msg.Body)
	b.metrics.RecordTimer("bus_handle", time.Since(start).Milliseconds())

	switch {
	case err == nil:
		if cErr := receiver.CompleteMessage(ctx, msg, nil); cErr != nil {
			log.Error().Err(cErr).Str("topic", topic).Msg("Failed to complete message")
		}
		b.metrics.RecordSuccess("bus_handle")

	case errors.Is(err, ErrNotDecodable):
		log.Error().Err(err).Str("topic", topic).Str("message_id", msg.MessageID).Msg("Dead-lettering undecodable message")
		if dErr := receiver.DeadLetterMessage(ctx, msg, nil); dErr != nil {
			log.Error().Err(dErr).Str("topic", topic).Msg("Failed to dead-letter message")
		}
		b.metrics.RecordError("bus_handle")

	default:
		log.Error().Err(err).Str("topic", topic).Str("message_id", msg.MessageID).Msg("Handler failed, abandoning for redelivery")
		if aErr := receiver.AbandonMessage(ctx, msg, nil); aErr != nil {
			log.Error().Err(aErr).Str("topic", topic).Msg("Failed to abandon message")
		}
		b.metrics.RecordError("bus_handle")
	}
}

// Close shuts down all senders and the underlying connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, sender := range b.senders {
		if err := sender.Close(context.Background()); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Failed to close sender")
		}
	}
	return b.client.Close(context.Background())
}

package messaging

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/internal/events"
)

// ErrNotDecodable marks messages that can never be processed. The bus
// dead-letters them instead of retrying forever.
var ErrNotDecodable = errors.New("message is not decodable")

// Handler processes one decoded domain event.
type Handler interface {
	Handle(ctx context.Context, ev events.Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev events.Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev events.Event) error { return f(ctx, ev) }

// Dispatcher routes decoded envelope events to their handlers by
// event name.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// On registers a handler for an event name.
func (d *Dispatcher) On(eventName string, h Handler) {
	d.handlers[eventName] = h
}

// Topics lists the event names with registered handlers. Each one is
// consumed as its own service bus topic.
func (d *Dispatcher) Topics() []string {
	topics := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		topics = append(topics, name)
	}
	return topics
}

// Dispatch decodes a raw envelope and routes it. Undecodable payloads
// and unroutable event types return ErrNotDecodable.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	ev, err := events.Unmarshal(raw)
	if err != nil {
		return errors.Wrap(ErrNotDecodable, err.Error())
	}

	handler, ok := d.handlers[ev.EventName()]
	if !ok {
		return errors.Wrapf(ErrNotDecodable, "no handler for event %s", ev.EventName())
	}

	log.Debug().Str("event_id", ev.EventID()).Str("type", ev.EventName()).Msg("Dispatching event")
	return handler.Handle(ctx, ev)
}

package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/models"
)

// ProcessedEventStore persists consumed event ids.
type ProcessedEventStore interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Create(ctx context.Context, record *models.ProcessedEvent) error
}

// EventTracker makes event handling idempotent. Handlers check
// IsProcessed before side effects and call MarkProcessed after.
type EventTracker struct {
	store ProcessedEventStore
}

// NewEventTracker creates an event tracker.
func NewEventTracker(store ProcessedEventStore) *EventTracker {
	return &EventTracker{store: store}
}

// IsProcessed reports whether the event id was already handled. Store
// errors propagate so the message is redelivered rather than risking
// a double apply.
func (t *EventTracker) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	processed, err := t.store.Exists(ctx, eventID)
	if err != nil {
		return false, errors.Wrap(err, "checking event idempotency")
	}
	return processed, nil
}

// MarkProcessed records the event id. A failed mark is only logged:
// the work itself succeeded and the next delivery of the same event is
// absorbed by the idempotent writes.
func (t *EventTracker) MarkProcessed(ctx context.Context, ev events.Event) {
	_, userID := ev.Subject()
	record := &models.ProcessedEvent{
		EventID:   ev.EventID(),
		EventType: ev.EventName(),
		UserID:    userID,
	}
	if err := t.store.Create(ctx, record); err != nil {
		log.Error().Err(err).
			Str("event_id", ev.EventID()).
			Str("type", ev.EventName()).
			Msg("Failed to mark event as processed")
	}
}

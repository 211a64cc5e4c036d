// Package eventstore keeps a durable audit copy of every domain event
// the service publishes.
package eventstore

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/models"
)

// GormEventStore persists domain event records with GORM.
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore creates a new GORM event store.
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

// Append records a published event. Re-publishing the same event id,
// as the stuck-quiz reconciler may do, is a no-op.
func (s *GormEventStore) Append(ctx context.Context, ev events.Event, payload []byte) error {
	aggregateID, userID := ev.Subject()
	record := models.DomainEventRecord{
		EventID:     ev.EventID(),
		EventName:   ev.EventName(),
		AggregateID: aggregateID,
		UserID:      userID,
		OccurredOn:  ev.OccurredOn(),
		Payload:     payload,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error
	return errors.Wrap(err, "appending domain event record")
}

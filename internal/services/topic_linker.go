package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/metrics"
	"example.com/snippetquiz/services/core/internal/tracing"
)

// TopicLinker consumes ai.topics.added and persists the topics plus
// their link to the content entry.
type TopicLinker struct {
	topics  TopicStore
	tracker Tracker
	tracer  tracing.Tracer
	metrics *metrics.Metrics
}

// NewTopicLinker creates the ai.topics.added handler.
func NewTopicLinker(topics TopicStore, tracker Tracker, tracer tracing.Tracer, m *metrics.Metrics) *TopicLinker {
	return &TopicLinker{topics: topics, tracker: tracker, tracer: tracer, metrics: m}
}

// HandleTopicsAdded processes one ai.topics.added event.
func (s *TopicLinker) HandleTopicsAdded(ctx context.Context, ev *events.TopicsAdded) error {
	txn := s.tracer.StartTransaction("topic-linker.topics-added")
	defer s.tracer.EndTransaction(txn)

	processed, err := s.tracker.IsProcessed(ctx, ev.EventID())
	if err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}
	if processed {
		log.Info().Str("event_id", ev.EventID()).Msg("Event already processed, skipping")
		return nil
	}

	entryID, err := uuid.Parse(ev.EntryID)
	if err != nil {
		log.Error().Err(err).Str("entry_id", ev.EntryID).Msg("Invalid entry id, dropping event")
		return nil
	}
	userID, err := uuid.Parse(ev.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", ev.UserID).Msg("Invalid user id, dropping event")
		return nil
	}

	if len(ev.Topics) > 0 {
		if err := s.topics.UpsertMany(ctx, userID, ev.Topics); err != nil {
			s.tracer.RecordError(txn, err)
			return err
		}
		if err := s.topics.LinkEntry(ctx, entryID, userID, ev.Topics); err != nil {
			s.tracer.RecordError(txn, err)
			return err
		}
		log.Info().
			Str("entry_id", ev.EntryID).
			Int("topics", len(ev.Topics)).
			Msg("Linked topics to content entry")
		s.metrics.IncrementCounterBy("topics_linked", int64(len(ev.Topics)))
	}

	s.tracker.MarkProcessed(ctx, ev)
	return nil
}

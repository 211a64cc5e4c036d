package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/internal/ai"
	"example.com/snippetquiz/services/core/internal/cache"
	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/fanout"
	"example.com/snippetquiz/services/core/internal/metrics"
	"example.com/snippetquiz/services/core/internal/models"
	"example.com/snippetquiz/services/core/internal/repositories"
	"example.com/snippetquiz/services/core/internal/tracing"
)

// TopicService reacts to captured content entries: it saves the local
// projection, asks the model for topics and announces them on the bus.
type TopicService struct {
	entries    ContentEntryStore
	topics     TopicStore
	characters CharacterStore
	cache      TopicCache
	generator  TopicGenerator
	publisher  EventPublisher
	fanout     Fanout
	tracker    Tracker
	tracer     tracing.Tracer
	metrics    *metrics.Metrics
	cacheTTL   time.Duration
}

// NewTopicService creates the content-entry.created handler.
func NewTopicService(
	entries ContentEntryStore,
	topics TopicStore,
	characters CharacterStore,
	topicCache TopicCache,
	generator TopicGenerator,
	publisher EventPublisher,
	fan Fanout,
	tracker Tracker,
	tracer tracing.Tracer,
	m *metrics.Metrics,
	cacheTTL time.Duration,
) *TopicService {
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}
	return &TopicService{
		entries:    entries,
		topics:     topics,
		characters: characters,
		cache:      topicCache,
		generator:  generator,
		publisher:  publisher,
		fanout:     fan,
		tracker:    tracker,
		tracer:     tracer,
		metrics:    m,
		cacheTTL:   cacheTTL,
	}
}

// HandleContentEntryCreated processes one content-entry.created event.
func (s *TopicService) HandleContentEntryCreated(ctx context.Context, ev *events.ContentEntryCreated) error {
	txn := s.tracer.StartTransaction("topic-service.content-entry-created")
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

	if ev.Duplicated {
		log.Info().Str("entry_id", ev.EntryID).Msg("Content entry is duplicated, skipping")
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

	entry := &models.ContentEntry{
		ID:             entryID,
		UserID:         userID,
		Content:        ev.Content,
		ContentType:    ev.ContentType,
		SourceURL:      ev.SourceURL,
		PageTitle:      ev.PageTitle,
		WordCount:      ev.WordCount,
		VideoDuration:  ev.VideoDuration,
		YoutubeVideoID: ev.YoutubeVideoID,
	}
	if err := s.entries.Upsert(ctx, entry); err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	if err := s.linkBanks(ctx, entryID, userID, ev.BankIDs); err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	existingTopics, err := s.existingTopics(ctx, userID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	persona, character := s.loadPersona(ctx)

	result := s.generator.GenerateTopics(ctx, ev.Content, ev.PageTitle, existingTopics, persona)
	log.Info().
		Str("entry_id", ev.EntryID).
		Int("topics", len(result.Topics)).
		Msg("Generated topics for content entry")

	if len(result.Topics) > 0 {
		// Topics are durable before anyone hears about them. A lost
		// hop between publish and the linker must not lose them.
		if err := s.topics.UpsertMany(ctx, userID, result.Topics); err != nil {
			s.tracer.RecordError(txn, err)
			return err
		}
		if err := s.publisher.Publish(ctx, events.NewTopicsAdded(ev.EntryID, ev.UserID, result.Topics)); err != nil {
			s.tracer.RecordError(txn, err)
			return err
		}
		s.metrics.IncrementCounterBy("topics_generated", int64(len(result.Topics)))
	} else {
		s.metrics.IncrementCounter("topics_empty_results")
	}

	if character != nil && result.Comment != "" {
		msg := fanout.CharacterMessage{
			CharacterMessage: result.Comment,
			EmotionCode:      result.Emotion,
		}
		if err := s.fanout.PublishCharacterMessage(ctx, ev.UserID, msg); err != nil {
			// Character comments are ephemeral color, never worth a redelivery.
			log.Error().Err(err).Str("user_id", ev.UserID).Msg("Failed to publish character message")
		}
	}

	s.tracker.MarkProcessed(ctx, ev)
	s.metrics.IncrementCounter("content_entries_processed")
	return nil
}

// linkBanks mirrors the entry's bank membership locally so the
// reconciler can later list a bank's entries still pending questions.
func (s *TopicService) linkBanks(ctx context.Context, entryID, userID uuid.UUID, rawIDs []string) error {
	bankIDs := make([]uuid.UUID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Error().Err(err).Str("bank_id", raw).Msg("Invalid bank id, skipping link")
			continue
		}
		bankIDs = append(bankIDs, id)
	}
	if len(bankIDs) == 0 {
		return nil
	}
	return s.entries.LinkBanks(ctx, entryID, userID, bankIDs)
}

func (s *TopicService) existingTopics(ctx context.Context, userID uuid.UUID) ([]string, error) {
	key := cache.GetUserTopicsCacheKey(userID)

	var cached []string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	names, err := s.topics.ListNamesByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing existing topics")
	}

	if err := s.cache.Set(ctx, key, names, s.cacheTTL); err != nil {
		log.Debug().Err(err).Str("user_id", userID.String()).Msg("Failed to cache user topics")
	}
	return names, nil
}

func (s *TopicService) loadPersona(ctx context.Context) (*ai.Persona, *models.Character) {
	key := cache.GetDefaultCharacterCacheKey()

	var cached models.Character
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return personaFor(&cached)
	}

	character, err := s.characters.GetDefault(ctx)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to load character, generating without persona")
		}
		return nil, nil
	}

	if err := s.cache.Set(ctx, key, character, s.cacheTTL); err != nil {
		log.Debug().Err(err).Msg("Failed to cache default character")
	}
	return personaFor(character)
}

func personaFor(character *models.Character) (*ai.Persona, *models.Character) {
	return &ai.Persona{
		Name:          character.Name,
		IntroPrompt:   character.IntroPrompt,
		EmotionPrompt: character.EmotionPrompt,
	}, character
}

package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/internal/chunker"
	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/metrics"
	"example.com/snippetquiz/services/core/internal/models"
	"example.com/snippetquiz/services/core/internal/tracing"
)

// QuizGenerator orchestrates quiz generation. It walks the quiz's
// content entries chunk by chunk, asks the model for questions and
// publishes one progress event per chunk.
type QuizGenerator struct {
	entries   ContentEntryStore
	quizzes   QuizStore
	generator QuestionGenerator
	publisher EventPublisher
	tracker   Tracker
	tracer    tracing.Tracer
	metrics   *metrics.Metrics

	chunkSize  int
	chunkDelay time.Duration
}

// NewQuizGenerator creates the quiz.created handler.
func NewQuizGenerator(
	entries ContentEntryStore,
	quizzes QuizStore,
	generator QuestionGenerator,
	publisher EventPublisher,
	tracker Tracker,
	tracer tracing.Tracer,
	m *metrics.Metrics,
	chunkSize int,
	chunkDelay time.Duration,
) *QuizGenerator {
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultChunkSize
	}
	return &QuizGenerator{
		entries:    entries,
		quizzes:    quizzes,
		generator:  generator,
		publisher:  publisher,
		tracker:    tracker,
		tracer:     tracer,
		metrics:    m,
		chunkSize:  chunkSize,
		chunkDelay: chunkDelay,
	}
}

// HandleQuizCreated processes one quiz.created event.
func (s *QuizGenerator) HandleQuizCreated(ctx context.Context, ev *events.QuizCreated) error {
	txn := s.tracer.StartTransaction("quiz-generator.quiz-created")
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

	quizID, err := uuid.Parse(ev.QuizID)
	if err != nil {
		log.Error().Err(err).Str("quiz_id", ev.QuizID).Msg("Invalid quiz id, dropping event")
		return nil
	}
	userID, err := uuid.Parse(ev.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", ev.UserID).Msg("Invalid user id, dropping event")
		return nil
	}
	bankID, err := uuid.Parse(ev.BankID)
	if err != nil {
		log.Error().Err(err).Str("bank_id", ev.BankID).Msg("Invalid bank id, dropping event")
		return nil
	}

	entryIDs := make([]uuid.UUID, 0, len(ev.NewEntryIDs))
	for _, raw := range ev.NewEntryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Warn().Str("entry_id", raw).Msg("Skipping invalid entry id")
			continue
		}
		entryIDs = append(entryIDs, id)
	}

	quiz := &models.Quiz{
		ID:                  quizID,
		UserID:              userID,
		BankID:              bankID,
		BankName:            ev.BankName,
		Status:              models.QuizStatusPrepare,
		Instructions:        ev.Instructions,
		ContentEntriesCount: len(entryIDs),
	}
	if err := s.quizzes.Upsert(ctx, quiz); err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	entries, err := s.entries.FindByIDs(ctx, entryIDs)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	totalChunks := 0
	for _, entry := range entries {
		totalChunks += chunker.Count(entry.Content, s.chunkSize)
	}

	log.Info().
		Str("quiz_id", ev.QuizID).
		Int("entries", len(entries)).
		Int("total_chunks", totalChunks).
		Msg("Starting quiz generation")

	if totalChunks == 0 {
		// Nothing to analyze. A single empty progress event moves the
		// quiz straight to READY downstream.
		empty := &events.QuestionsGenerated{
			Header:       events.NewHeader(),
			QuizID:       ev.QuizID,
			UserID:       ev.UserID,
			BankID:       ev.BankID,
			TotalEntries: len(entries),
			TotalSkipped: ev.EntriesSkipped,
		}
		if err := s.publisher.Publish(ctx, empty); err != nil {
			s.tracer.RecordError(txn, err)
			return err
		}
		s.tracker.MarkProcessed(ctx, ev)
		return nil
	}

	start := time.Now()
	globalChunk := 0
	questionsSoFar := 0

	for entryIndex, entry := range entries {
		chunks := chunker.Split(entry.Content, s.chunkSize)
		if len(chunks) == 0 {
			log.Info().Str("entry_id", entry.ID.String()).Msg("Entry has no content, skipping")
			continue
		}

		// The running summary carries context between chunks of the
		// same entry. Each chunk's summary replaces the previous one.
		var summaries []string

		for chunkIndex, chunk := range chunks {
			seg := s.tracer.StartSpan("generate-chunk", txn)
			generation := s.generator.GenerateQuestions(ctx, ev.Instructions, summaries, entry.PageTitle, chunk)
			seg.End()
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if generation.Summary != "" {
				summaries = []string{generation.Summary}
			}
			if len(generation.Questions) == 0 {
				s.metrics.IncrementCounter("chunks_without_questions")
			}

			questions := make([]events.GeneratedQuestion, 0, len(generation.Questions))
			for _, q := range generation.Questions {
				options := make([]events.GeneratedOption, 0, len(q.Options))
				for _, opt := range q.Options {
					options = append(options, events.GeneratedOption{
						OptionText:        opt.Text,
						OptionExplanation: opt.Explanation,
						IsCorrect:         opt.Correct,
					})
				}
				questions = append(questions, events.GeneratedQuestion{
					Question: q.Question,
					Type:     models.QuestionTypeMultipleChoice,
					Options:  options,
				})
			}
			questionsSoFar += len(questions)

			progress := &events.QuestionsGenerated{
				Header:         events.NewHeader(),
				QuizID:         ev.QuizID,
				UserID:         ev.UserID,
				BankID:         ev.BankID,
				TotalEntries:   len(entries),
				TotalSkipped:   ev.EntriesSkipped,
				EntryIndex:     entryIndex,
				QuestionsSoFar: questionsSoFar,
				TotalChunks:    totalChunks,
				ChunkIndex:     globalChunk,
				Entry: &events.EntryResult{
					ID:                entry.ID.String(),
					PageTitle:         entry.PageTitle,
					WordCountAnalyzed: len(strings.Fields(chunk)),
					ChunkIndex:        chunkIndex,
					TotalEntryChunks:  len(chunks),
					Questions:         questions,
				},
			}

			if err := s.publisher.Publish(ctx, progress); err != nil {
				// Abort without marking processed so the broker
				// redelivers the quiz; persisted chunks are absorbed
				// by the idempotent question writes.
				s.tracer.RecordError(txn, err)
				return err
			}
			s.metrics.IncrementCounterBy("questions_generated", int64(len(questions)))

			globalChunk++
			if globalChunk < totalChunks {
				if err := s.pace(ctx); err != nil {
					return err
				}
			}
		}
	}

	s.tracker.MarkProcessed(ctx, ev)
	s.metrics.IncrementCounter("quizzes_generated")
	s.metrics.RecordDuration("quiz_generation", start)
	log.Info().
		Str("quiz_id", ev.QuizID).
		Int("questions", questionsSoFar).
		Msg("Quiz generation finished")
	return nil
}

// pace waits between chunks so free-tier model quotas survive.
func (s *QuizGenerator) pace(ctx context.Context) error {
	if s.chunkDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.chunkDelay):
		return nil
	}
}

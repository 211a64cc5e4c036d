package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/fanout"
	"example.com/snippetquiz/services/core/internal/metrics"
	"example.com/snippetquiz/services/core/internal/models"
	"example.com/snippetquiz/services/core/internal/tracing"
)

// QuestionWriter consumes ai.questions.generated: it persists the
// chunk's questions, advances the quiz status and fans the progress
// out to the owner's live stream.
type QuestionWriter struct {
	quizzes   QuizStore
	entries   ContentEntryStore
	questions QuestionStore
	indexer   QuestionIndexer
	fanout    Fanout
	tracker   Tracker
	tracer    tracing.Tracer
	metrics   *metrics.Metrics
}

// NewQuestionWriter creates the ai.questions.generated handler.
func NewQuestionWriter(
	quizzes QuizStore,
	entries ContentEntryStore,
	questions QuestionStore,
	indexer QuestionIndexer,
	fan Fanout,
	tracker Tracker,
	tracer tracing.Tracer,
	m *metrics.Metrics,
) *QuestionWriter {
	return &QuestionWriter{
		quizzes:   quizzes,
		entries:   entries,
		questions: questions,
		indexer:   indexer,
		fanout:    fan,
		tracker:   tracker,
		tracer:    tracer,
		metrics:   m,
	}
}

// HandleQuestionsGenerated processes one progress event.
func (s *QuestionWriter) HandleQuestionsGenerated(ctx context.Context, ev *events.QuestionsGenerated) error {
	txn := s.tracer.StartTransaction("question-writer.questions-generated")
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

	quiz, err := s.quizzes.GetByIDAndUser(ctx, quizID, userID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrapf(err, "loading quiz %s", ev.QuizID)
	}

	// Status moves only forward. A late or replayed event can never
	// reopen a finished quiz.
	if quiz.Status == models.QuizStatusReady {
		log.Warn().Str("quiz_id", ev.QuizID).Msg("Quiz already READY, ignoring progress event")
		return nil
	}

	if ev.Entry != nil && ev.TotalChunks > 0 {
		if err := s.persistChunk(ctx, quiz, userID, ev); err != nil {
			s.tracer.RecordError(txn, err)
			s.metrics.RecordError("chunk_persistence")
			return err
		}
		s.metrics.RecordSuccess("chunk_persistence")
	}

	status := models.QuizStatusInProgress
	if ev.LastChunk() {
		status = models.QuizStatusReady
	}

	completedCount, err := s.questions.CountByQuiz(ctx, quizID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	quiz.Status = status
	quiz.ContentEntriesCount = ev.TotalEntries
	if ev.QuestionsSoFar > quiz.QuestionsCount {
		quiz.QuestionsCount = ev.QuestionsSoFar
	}
	quiz.QuestionsCompleted = completedCount

	if err := s.quizzes.UpdateProgress(ctx, quiz); err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	s.publishFanout(ctx, ev)

	s.tracker.MarkProcessed(ctx, ev)
	if status == models.QuizStatusReady {
		s.metrics.IncrementCounter("quizzes_ready")
		log.Info().Str("quiz_id", ev.QuizID).Int("questions", completedCount).Msg("Quiz is READY")
	}
	return nil
}

func (s *QuestionWriter) persistChunk(ctx context.Context, quiz *models.Quiz, userID uuid.UUID, ev *events.QuestionsGenerated) error {
	entryID, err := uuid.Parse(ev.Entry.ID)
	if err != nil {
		return errors.Wrapf(err, "invalid content entry id %s", ev.Entry.ID)
	}

	// Ownership check: the entry must belong to the quiz owner.
	if _, err := s.entries.GetByIDAndUser(ctx, entryID, userID); err != nil {
		return errors.Wrapf(err, "loading content entry %s", ev.Entry.ID)
	}

	questions := make([]models.QuizQuestion, 0, len(ev.Entry.Questions))
	for i, q := range ev.Entry.Questions {
		questionType := q.Type
		if questionType == "" {
			questionType = models.QuestionTypeMultipleChoice
		}

		options := make([]models.QuizQuestionOption, 0, len(q.Options))
		for pos, opt := range q.Options {
			options = append(options, models.QuizQuestionOption{
				ID:          uuid.New(),
				OptionText:  opt.OptionText,
				Explanation: opt.OptionExplanation,
				IsCorrect:   opt.IsCorrect,
				Position:    pos,
			})
		}

		questions = append(questions, models.QuizQuestion{
			ID:             uuid.New(),
			QuizID:         quiz.ID,
			ContentEntryID: entryID,
			UserID:         userID,
			Question:       q.Question,
			Type:           questionType,
			ChunkIndex:     ev.ChunkIndex,
			QuestionIndex:  i,
			Options:        options,
		})
	}

	// The store gets its own rows. Whatever it scrubs while inserting
	// must not reach the indexer below.
	rows := make([]models.QuizQuestion, len(questions))
	copy(rows, questions)
	if err := s.questions.UpsertChunk(ctx, rows); err != nil {
		return err
	}
	s.metrics.IncrementCounterBy("questions_persisted", int64(len(questions)))

	if len(questions) > 0 && s.indexer != nil {
		if err := s.indexer.IndexQuestions(ctx, quiz, questions); err != nil {
			// Search is a secondary read model, never worth failing the chunk.
			log.Error().Err(err).Str("quiz_id", quiz.ID.String()).Msg("Failed to index questions")
		}
	}

	if ev.LastEntryChunk() {
		if err := s.entries.MarkQuestionsGenerated(ctx, entryID); err != nil {
			return err
		}
	}
	return nil
}

// publishFanout mirrors the progress to the owner's live stream. The
// final chunk carries a completion block with a trimmed progress.
func (s *QuestionWriter) publishFanout(ctx context.Context, ev *events.QuestionsGenerated) {
	var msg fanout.QuizMessage

	if ev.LastChunk() {
		msg = fanout.QuizMessage{
			Completed: &fanout.Completed{QuizID: ev.QuizID},
			Progress: &fanout.Progress{
				QuizID:            ev.QuizID,
				BankID:            ev.BankID,
				TotalEntries:      ev.TotalEntries,
				TotalChunks:       ev.TotalChunks,
				CurrentChunkIndex: ev.ChunkIndex,
			},
		}
	} else {
		progress := &fanout.Progress{
			QuizID:            ev.QuizID,
			BankID:            ev.BankID,
			TotalEntries:      ev.TotalEntries,
			TotalSkipped:      ev.TotalSkipped,
			CurrentEntryIndex: ev.EntryIndex,
			QuestionsSoFar:    ev.QuestionsSoFar,
			TotalChunks:       ev.TotalChunks,
			CurrentChunkIndex: ev.ChunkIndex,
		}
		if ev.Entry != nil {
			progress.Entry = &fanout.ProgressEntry{
				ID:                ev.Entry.ID,
				Name:              ev.Entry.PageTitle,
				WordCountAnalyzed: ev.Entry.WordCountAnalyzed,
			}
		}
		msg = fanout.QuizMessage{Progress: progress}
	}

	if err := s.fanout.PublishQuizProgress(ctx, ev.UserID, msg); err != nil {
		log.Error().Err(err).Str("quiz_id", ev.QuizID).Msg("Failed to publish quiz progress fan-out")
	}
}

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/metrics"
	"example.com/snippetquiz/services/core/internal/models"
)

// Reconciler sweeps quizzes stuck in PREPARE or IN_PROGRESS. A crash
// between chunks leaves a quiz half generated; republishing its
// quiz.created event with the still-pending entries restarts the
// pipeline, and the idempotent question writes absorb the overlap.
type Reconciler struct {
	quizzes   QuizStore
	entries   ContentEntryStore
	publisher EventPublisher
	metrics   *metrics.Metrics
	stuckAge  time.Duration
}

// NewReconciler creates the stuck-quiz sweeper.
func NewReconciler(quizzes QuizStore, entries ContentEntryStore, publisher EventPublisher, m *metrics.Metrics, stuckAge time.Duration) *Reconciler {
	if stuckAge == 0 {
		stuckAge = time.Hour
	}
	return &Reconciler{
		quizzes:   quizzes,
		entries:   entries,
		publisher: publisher,
		metrics:   m,
		stuckAge:  stuckAge,
	}
}

// Reconcile runs one sweep. It is scheduled on a cron interval.
func (s *Reconciler) Reconcile(ctx context.Context) error {
	stuck, err := s.quizzes.FindStuck(ctx, s.stuckAge)
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		return nil
	}

	log.Warn().Int("count", len(stuck)).Msg("Found stuck quizzes, restarting generation")

	for _, quiz := range stuck {
		if err := s.restart(ctx, quiz); err != nil {
			log.Error().Err(err).Str("quiz_id", quiz.ID.String()).Msg("Failed to restart stuck quiz")
			continue
		}
		s.metrics.IncrementCounter("quizzes_reconciled")
	}
	return nil
}

func (s *Reconciler) restart(ctx context.Context, quiz models.Quiz) error {
	pending, err := s.entries.ListPendingByBank(ctx, quiz.BankID, quiz.UserID)
	if err != nil {
		return err
	}

	entryIDs := make([]string, 0, len(pending))
	for _, entry := range pending {
		entryIDs = append(entryIDs, entry.ID.String())
	}

	// With nothing pending the republished event is empty, which moves
	// the quiz to READY instead of leaving it stuck forever.
	retry := &events.QuizCreated{
		Header:       events.NewHeader(),
		QuizID:       quiz.ID.String(),
		UserID:       quiz.UserID.String(),
		BankID:       quiz.BankID.String(),
		BankName:     quiz.BankName,
		Status:       quiz.Status,
		Instructions: quiz.Instructions,
		NewEntryIDs:  entryIDs,
		CreatedAt:    quiz.CreatedAt.UTC().Format(time.RFC3339),
	}

	log.Info().
		Str("quiz_id", quiz.ID.String()).
		Int("pending_entries", len(entryIDs)).
		Msg("Republishing quiz.created for stuck quiz")
	return s.publisher.Publish(ctx, retry)
}

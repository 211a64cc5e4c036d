package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"example.com/snippetquiz/services/core/internal/ai"
	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/fanout"
	"example.com/snippetquiz/services/core/internal/models"
)

// EventPublisher publishes domain events on the bus.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Fanout pushes per-user payloads through Redis pub/sub.
type Fanout interface {
	PublishQuizProgress(ctx context.Context, userID string, msg fanout.QuizMessage) error
	PublishCharacterMessage(ctx context.Context, userID string, msg fanout.CharacterMessage) error
}

// TopicGenerator produces topics for a content entry.
type TopicGenerator interface {
	GenerateTopics(ctx context.Context, content, pageTitle string, existingTopics []string, persona *ai.Persona) ai.TopicResult
}

// QuestionGenerator produces questions and a summary for one chunk.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, instructions string, summaries []string, pageTitle, chunk string) ai.Generation
}

// Tracker gates event handling on processed event ids.
type Tracker interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, ev events.Event)
}

// ContentEntryStore is the content entry persistence used by handlers.
type ContentEntryStore interface {
	Upsert(ctx context.Context, entry *models.ContentEntry) error
	LinkBanks(ctx context.Context, entryID, userID uuid.UUID, bankIDs []uuid.UUID) error
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ContentEntry, error)
	GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.ContentEntry, error)
	ListPendingByBank(ctx context.Context, bankID, userID uuid.UUID) ([]models.ContentEntry, error)
	MarkQuestionsGenerated(ctx context.Context, id uuid.UUID) error
}

// TopicStore is the topic persistence used by handlers.
type TopicStore interface {
	ListNamesByUser(ctx context.Context, userID uuid.UUID) ([]string, error)
	UpsertMany(ctx context.Context, userID uuid.UUID, names []string) error
	LinkEntry(ctx context.Context, entryID, userID uuid.UUID, names []string) error
}

// CharacterStore loads assistant personas.
type CharacterStore interface {
	GetDefault(ctx context.Context) (*models.Character, error)
}

// QuizStore is the quiz persistence used by handlers.
type QuizStore interface {
	GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.Quiz, error)
	Upsert(ctx context.Context, quiz *models.Quiz) error
	UpdateProgress(ctx context.Context, quiz *models.Quiz) error
	FindStuck(ctx context.Context, age time.Duration) ([]models.Quiz, error)
}

// QuestionStore is the question persistence used by handlers.
type QuestionStore interface {
	UpsertChunk(ctx context.Context, questions []models.QuizQuestion) error
	CountByQuiz(ctx context.Context, quizID uuid.UUID) (int, error)
}

// QuestionIndexer mirrors persisted questions into the search index.
type QuestionIndexer interface {
	IndexQuestions(ctx context.Context, quiz *models.Quiz, questions []models.QuizQuestion) error
}

// TopicCache caches user topic lists between handler runs.
type TopicCache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

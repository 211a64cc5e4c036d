package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/snippetquiz/services/core/config"
	"example.com/snippetquiz/services/core/internal/ai"
	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/fanout"
	"example.com/snippetquiz/services/core/internal/models"
	"example.com/snippetquiz/services/core/internal/tracing"
)

func testTracer(t *testing.T) tracing.Tracer {
	t.Helper()
	tracer, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	return tracer
}

// Mock stores for testing

type MockContentEntryStore struct {
	mock.Mock
}

func (m *MockContentEntryStore) Upsert(ctx context.Context, entry *models.ContentEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockContentEntryStore) LinkBanks(ctx context.Context, entryID, userID uuid.UUID, bankIDs []uuid.UUID) error {
	args := m.Called(ctx, entryID, userID, bankIDs)
	return args.Error(0)
}

func (m *MockContentEntryStore) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ContentEntry, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]models.ContentEntry), args.Error(1)
}

func (m *MockContentEntryStore) GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.ContentEntry, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContentEntry), args.Error(1)
}

func (m *MockContentEntryStore) ListPendingByBank(ctx context.Context, bankID, userID uuid.UUID) ([]models.ContentEntry, error) {
	args := m.Called(ctx, bankID, userID)
	return args.Get(0).([]models.ContentEntry), args.Error(1)
}

func (m *MockContentEntryStore) MarkQuestionsGenerated(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockTopicStore struct {
	mock.Mock
}

func (m *MockTopicStore) ListNamesByUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTopicStore) UpsertMany(ctx context.Context, userID uuid.UUID, names []string) error {
	args := m.Called(ctx, userID, names)
	return args.Error(0)
}

func (m *MockTopicStore) LinkEntry(ctx context.Context, entryID, userID uuid.UUID, names []string) error {
	args := m.Called(ctx, entryID, userID, names)
	return args.Error(0)
}

type MockCharacterStore struct {
	mock.Mock
}

func (m *MockCharacterStore) GetDefault(ctx context.Context) (*models.Character, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Character), args.Error(1)
}

type MockQuizStore struct {
	mock.Mock
}

func (m *MockQuizStore) GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.Quiz, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quiz), args.Error(1)
}

func (m *MockQuizStore) Upsert(ctx context.Context, quiz *models.Quiz) error {
	args := m.Called(ctx, quiz)
	return args.Error(0)
}

func (m *MockQuizStore) UpdateProgress(ctx context.Context, quiz *models.Quiz) error {
	args := m.Called(ctx, quiz)
	return args.Error(0)
}

func (m *MockQuizStore) FindStuck(ctx context.Context, age time.Duration) ([]models.Quiz, error) {
	args := m.Called(ctx, age)
	return args.Get(0).([]models.Quiz), args.Error(1)
}

type MockQuestionStore struct {
	mock.Mock
}

func (m *MockQuestionStore) UpsertChunk(ctx context.Context, questions []models.QuizQuestion) error {
	args := m.Called(ctx, questions)
	return args.Error(0)
}

func (m *MockQuestionStore) CountByQuiz(ctx context.Context, quizID uuid.UUID) (int, error) {
	args := m.Called(ctx, quizID)
	return args.Int(0), args.Error(1)
}

type MockProcessedEventStore struct {
	mock.Mock
}

func (m *MockProcessedEventStore) Exists(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockProcessedEventStore) Create(ctx context.Context, record *models.ProcessedEvent) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) IndexQuestions(ctx context.Context, quiz *models.Quiz, questions []models.QuizQuestion) error {
	args := m.Called(ctx, quiz, questions)
	return args.Error(0)
}

// fakePublisher records published events in order.
type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// fakeFanout records fan-out payloads per channel kind.
type fakeFanout struct {
	mu        sync.Mutex
	quiz      []fanout.QuizMessage
	character []fanout.CharacterMessage
	err       error
}

func (f *fakeFanout) PublishQuizProgress(ctx context.Context, userID string, msg fanout.QuizMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.quiz = append(f.quiz, msg)
	return nil
}

func (f *fakeFanout) PublishCharacterMessage(ctx context.Context, userID string, msg fanout.CharacterMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.character = append(f.character, msg)
	return nil
}

// fakeTracker is an in-memory idempotency gate.
type fakeTracker struct {
	mu        sync.Mutex
	processed map[string]bool
	marked    []string
}

func newFakeTracker(processedIDs ...string) *fakeTracker {
	processed := make(map[string]bool, len(processedIDs))
	for _, id := range processedIDs {
		processed[id] = true
	}
	return &fakeTracker{processed: processed}
}

func (t *fakeTracker) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processed[eventID], nil
}

func (t *fakeTracker) MarkProcessed(ctx context.Context, ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed[ev.EventID()] = true
	t.marked = append(t.marked, ev.EventID())
}

// fakeTopicGenerator returns a fixed topic result.
type fakeTopicGenerator struct {
	result ai.TopicResult
}

func (g *fakeTopicGenerator) GenerateTopics(ctx context.Context, content, pageTitle string, existingTopics []string, persona *ai.Persona) ai.TopicResult {
	return g.result
}

// fakeQuestionGenerator returns canned generations and records the
// summaries it was called with.
type fakeQuestionGenerator struct {
	mu        sync.Mutex
	calls     int
	summaries [][]string
	generate  func(call int) ai.Generation
}

func (g *fakeQuestionGenerator) GenerateQuestions(ctx context.Context, instructions string, summaries []string, pageTitle, chunk string) ai.Generation {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.summaries = append(g.summaries, append([]string(nil), summaries...))
	g.calls++
	if g.generate == nil {
		return ai.Generation{}
	}
	return g.generate(g.calls)
}

// memCache stores values in memory so cache round trips can be tested.
type memCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string][]byte)}
}

func (c *memCache) Get(ctx context.Context, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.values[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(data, value)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = data
	return nil
}

// missCache never hits and never stores.
type missCache struct{}

func (missCache) Get(ctx context.Context, key string, value interface{}) error {
	return errors.New("cache miss")
}

func (missCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/snippetquiz/services/core/internal/ai"
	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/metrics"
	"example.com/snippetquiz/services/core/internal/models"
)

func quizCreatedEvent(quizID, userID, bankID uuid.UUID, entryIDs ...uuid.UUID) *events.QuizCreated {
	ids := make([]string, 0, len(entryIDs))
	for _, id := range entryIDs {
		ids = append(ids, id.String())
	}
	return &events.QuizCreated{
		Header:      events.NewHeader(),
		QuizID:      quizID.String(),
		UserID:      userID.String(),
		BankID:      bankID.String(),
		BankName:    "History notes",
		Status:      models.QuizStatusPrepare,
		NewEntryIDs: ids,
	}
}

func twoQuestionGeneration(call int) ai.Generation {
	return ai.Generation{
		Summary: fmt.Sprintf("summary %d", call),
		Questions: []ai.Question{
			{
				Question: fmt.Sprintf("Question %d-a?", call),
				Options: []ai.Option{
					{Text: "right", Correct: true, Explanation: "because"},
					{Text: "wrong", Correct: false},
				},
			},
			{Question: fmt.Sprintf("Question %d-b?", call)},
		},
	}
}

func TestHandleQuizCreatedPublishesOneEventPerChunk(t *testing.T) {
	quizID, userID, bankID := uuid.New(), uuid.New(), uuid.New()
	entryA, entryB := uuid.New(), uuid.New()

	// 3000 chars split into 2 chunks, 6000 chars into 3 chunks.
	entries := []models.ContentEntry{
		{ID: entryA, UserID: userID, PageTitle: "First", Content: strings.Repeat("word ", 600)},
		{ID: entryB, UserID: userID, PageTitle: "Second", Content: strings.Repeat("word ", 1200)},
	}

	entryStore := new(MockContentEntryStore)
	entryStore.On("FindByIDs", mock.Anything, []uuid.UUID{entryA, entryB}).Return(entries, nil)

	quizStore := new(MockQuizStore)
	quizStore.On("Upsert", mock.Anything, mock.MatchedBy(func(q *models.Quiz) bool {
		return q.ID == quizID && q.Status == models.QuizStatusPrepare && q.ContentEntriesCount == 2
	})).Return(nil)

	generator := &fakeQuestionGenerator{generate: twoQuestionGeneration}
	publisher := &fakePublisher{}
	tracker := newFakeTracker()

	svc := NewQuizGenerator(entryStore, quizStore, generator, publisher, tracker, testTracer(t), metrics.NewMetrics(), 2500, 0)

	ev := quizCreatedEvent(quizID, userID, bankID, entryA, entryB)
	require.NoError(t, svc.HandleQuizCreated(context.Background(), ev))

	published := publisher.published()
	require.Len(t, published, 5)
	require.Equal(t, 5, generator.calls)

	wantEntryIndex := []int{0, 0, 1, 1, 1}
	wantEntryChunk := []int{0, 1, 0, 1, 2}
	wantEntryTotal := []int{2, 2, 3, 3, 3}

	for i, raw := range published {
		progress, ok := raw.(*events.QuestionsGenerated)
		require.True(t, ok)
		require.Equal(t, quizID.String(), progress.QuizID)
		require.Equal(t, bankID.String(), progress.BankID)
		require.Equal(t, 5, progress.TotalChunks)
		require.Equal(t, i, progress.ChunkIndex)
		require.Equal(t, 2, progress.TotalEntries)
		require.Equal(t, wantEntryIndex[i], progress.EntryIndex)
		require.Equal(t, (i+1)*2, progress.QuestionsSoFar)

		require.NotNil(t, progress.Entry)
		require.Equal(t, wantEntryChunk[i], progress.Entry.ChunkIndex)
		require.Equal(t, wantEntryTotal[i], progress.Entry.TotalEntryChunks)
		require.Len(t, progress.Entry.Questions, 2)
		require.NotZero(t, progress.Entry.WordCountAnalyzed)
		require.Equal(t, models.QuestionTypeMultipleChoice, progress.Entry.Questions[0].Type)
	}

	last := published[4].(*events.QuestionsGenerated)
	require.True(t, last.LastChunk())
	require.True(t, last.LastEntryChunk())

	// Summaries only carry over between chunks of the same entry.
	require.Empty(t, generator.summaries[0])
	require.Equal(t, []string{"summary 1"}, generator.summaries[1])
	require.Empty(t, generator.summaries[2])
	require.Equal(t, []string{"summary 3"}, generator.summaries[3])
	require.Equal(t, []string{"summary 4"}, generator.summaries[4])

	require.Equal(t, []string{ev.EventID()}, tracker.marked)
	entryStore.AssertExpectations(t)
	quizStore.AssertExpectations(t)
}

func TestHandleQuizCreatedEmptyQuizPublishesSingleEvent(t *testing.T) {
	quizID, userID, bankID := uuid.New(), uuid.New(), uuid.New()

	entryStore := new(MockContentEntryStore)
	entryStore.On("FindByIDs", mock.Anything, []uuid.UUID{}).Return([]models.ContentEntry{}, nil)

	quizStore := new(MockQuizStore)
	quizStore.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	publisher := &fakePublisher{}
	tracker := newFakeTracker()

	svc := NewQuizGenerator(entryStore, quizStore, &fakeQuestionGenerator{}, publisher, tracker, testTracer(t), metrics.NewMetrics(), 2500, 0)

	ev := quizCreatedEvent(quizID, userID, bankID)
	require.NoError(t, svc.HandleQuizCreated(context.Background(), ev))

	published := publisher.published()
	require.Len(t, published, 1)

	progress := published[0].(*events.QuestionsGenerated)
	require.Zero(t, progress.TotalChunks)
	require.Nil(t, progress.Entry)
	require.True(t, progress.LastChunk())

	require.Equal(t, []string{ev.EventID()}, tracker.marked)
}

func TestHandleQuizCreatedSkipsEmptyEntries(t *testing.T) {
	quizID, userID, bankID := uuid.New(), uuid.New(), uuid.New()
	emptyEntry, fullEntry := uuid.New(), uuid.New()

	entries := []models.ContentEntry{
		{ID: emptyEntry, UserID: userID, Content: ""},
		{ID: fullEntry, UserID: userID, PageTitle: "Kept", Content: strings.Repeat("word ", 200)},
	}

	entryStore := new(MockContentEntryStore)
	entryStore.On("FindByIDs", mock.Anything, mock.Anything).Return(entries, nil)

	quizStore := new(MockQuizStore)
	quizStore.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	publisher := &fakePublisher{}
	svc := NewQuizGenerator(entryStore, quizStore, &fakeQuestionGenerator{generate: twoQuestionGeneration}, publisher, newFakeTracker(), testTracer(t), metrics.NewMetrics(), 2500, 0)

	ev := quizCreatedEvent(quizID, userID, bankID, emptyEntry, fullEntry)
	require.NoError(t, svc.HandleQuizCreated(context.Background(), ev))

	published := publisher.published()
	require.Len(t, published, 1)

	progress := published[0].(*events.QuestionsGenerated)
	require.Equal(t, 1, progress.TotalChunks)
	require.Equal(t, 1, progress.EntryIndex)
	require.Equal(t, fullEntry.String(), progress.Entry.ID)
}

func TestHandleQuizCreatedContinuesOnEmptyGenerations(t *testing.T) {
	quizID, userID, bankID := uuid.New(), uuid.New(), uuid.New()
	entryID := uuid.New()

	entries := []models.ContentEntry{
		{ID: entryID, UserID: userID, Content: strings.Repeat("word ", 600)},
	}

	entryStore := new(MockContentEntryStore)
	entryStore.On("FindByIDs", mock.Anything, mock.Anything).Return(entries, nil)

	quizStore := new(MockQuizStore)
	quizStore.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	publisher := &fakePublisher{}
	svc := NewQuizGenerator(entryStore, quizStore, &fakeQuestionGenerator{}, publisher, newFakeTracker(), testTracer(t), metrics.NewMetrics(), 2500, 0)

	require.NoError(t, svc.HandleQuizCreated(context.Background(), quizCreatedEvent(quizID, userID, bankID, entryID)))

	published := publisher.published()
	require.Len(t, published, 2)
	for _, raw := range published {
		progress := raw.(*events.QuestionsGenerated)
		require.Empty(t, progress.Entry.Questions)
		require.Zero(t, progress.QuestionsSoFar)
	}
}

func TestHandleQuizCreatedPublishErrorAbortsUnmarked(t *testing.T) {
	quizID, userID, bankID := uuid.New(), uuid.New(), uuid.New()
	entryID := uuid.New()

	entryStore := new(MockContentEntryStore)
	entryStore.On("FindByIDs", mock.Anything, mock.Anything).Return([]models.ContentEntry{
		{ID: entryID, UserID: userID, Content: strings.Repeat("word ", 600)},
	}, nil)

	quizStore := new(MockQuizStore)
	quizStore.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	publisher := &fakePublisher{err: errors.New("bus unavailable")}
	tracker := newFakeTracker()

	svc := NewQuizGenerator(entryStore, quizStore, &fakeQuestionGenerator{generate: twoQuestionGeneration}, publisher, tracker, testTracer(t), metrics.NewMetrics(), 2500, 0)

	err := svc.HandleQuizCreated(context.Background(), quizCreatedEvent(quizID, userID, bankID, entryID))
	require.Error(t, err)
	require.Empty(t, tracker.marked)
}

func TestHandleQuizCreatedAlreadyProcessed(t *testing.T) {
	ev := quizCreatedEvent(uuid.New(), uuid.New(), uuid.New())
	tracker := newFakeTracker(ev.EventID())

	publisher := &fakePublisher{}
	svc := NewQuizGenerator(new(MockContentEntryStore), new(MockQuizStore), &fakeQuestionGenerator{}, publisher, tracker, testTracer(t), metrics.NewMetrics(), 2500, 0)

	require.NoError(t, svc.HandleQuizCreated(context.Background(), ev))
	require.Empty(t, publisher.published())
}

func TestHandleQuizCreatedInvalidQuizIDDropped(t *testing.T) {
	publisher := &fakePublisher{}
	svc := NewQuizGenerator(new(MockContentEntryStore), new(MockQuizStore), &fakeQuestionGenerator{}, publisher, newFakeTracker(), testTracer(t), metrics.NewMetrics(), 2500, 0)

	ev := &events.QuizCreated{
		Header: events.NewHeader(),
		QuizID: "not-a-uuid",
		UserID: uuid.NewString(),
		BankID: uuid.NewString(),
	}
	require.NoError(t, svc.HandleQuizCreated(context.Background(), ev))
	require.Empty(t, publisher.published())
}

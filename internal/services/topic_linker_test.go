package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/metrics"
)

func TestHandleTopicsAddedPersistsAndLinks(t *testing.T) {
	entryID, userID := uuid.New(), uuid.New()
	topics := []string{"History", "Medieval England"}
	ev := events.NewTopicsAdded(entryID.String(), userID.String(), topics)

	topicStore := new(MockTopicStore)
	topicStore.On("UpsertMany", mock.Anything, userID, topics).Return(nil)
	topicStore.On("LinkEntry", mock.Anything, entryID, userID, topics).Return(nil)

	tracker := newFakeTracker()
	svc := NewTopicLinker(topicStore, tracker, testTracer(t), metrics.NewMetrics())

	require.NoError(t, svc.HandleTopicsAdded(context.Background(), ev))
	require.Equal(t, []string{ev.EventID()}, tracker.marked)
	topicStore.AssertExpectations(t)
}

func TestHandleTopicsAddedEmptyTopicsStillMarked(t *testing.T) {
	ev := events.NewTopicsAdded(uuid.NewString(), uuid.NewString(), nil)

	tracker := newFakeTracker()
	svc := NewTopicLinker(new(MockTopicStore), tracker, testTracer(t), metrics.NewMetrics())

	require.NoError(t, svc.HandleTopicsAdded(context.Background(), ev))
	require.Equal(t, []string{ev.EventID()}, tracker.marked)
}

func TestHandleTopicsAddedUpsertErrorRedelivered(t *testing.T) {
	ev := events.NewTopicsAdded(uuid.NewString(), uuid.NewString(), []string{"History"})

	topicStore := new(MockTopicStore)
	topicStore.On("UpsertMany", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down"))

	tracker := newFakeTracker()
	svc := NewTopicLinker(topicStore, tracker, testTracer(t), metrics.NewMetrics())

	require.Error(t, svc.HandleTopicsAdded(context.Background(), ev))
	require.Empty(t, tracker.marked)
}

func TestHandleTopicsAddedAlreadyProcessed(t *testing.T) {
	ev := events.NewTopicsAdded(uuid.NewString(), uuid.NewString(), []string{"History"})

	svc := NewTopicLinker(new(MockTopicStore), newFakeTracker(ev.EventID()), testTracer(t), metrics.NewMetrics())
	require.NoError(t, svc.HandleTopicsAdded(context.Background(), ev))
}

func TestHandleTopicsAddedInvalidUserIDDropped(t *testing.T) {
	ev := events.NewTopicsAdded(uuid.NewString(), "not-a-uuid", []string{"History"})

	tracker := newFakeTracker()
	svc := NewTopicLinker(new(MockTopicStore), tracker, testTracer(t), metrics.NewMetrics())

	require.NoError(t, svc.HandleTopicsAdded(context.Background(), ev))
	require.Empty(t, tracker.marked)
}

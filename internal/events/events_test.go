package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMarshalEnvelopeShape(t *testing.T) {
	ev := NewTopicsAdded("entry-1", "user-1", []string{"Math", "Science"})

	raw, err := Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Contains(t, decoded, "data")
	require.Contains(t, decoded, "meta")
	require.JSONEq(t, `{}`, string(decoded["meta"]))

	var data struct {
		EventID    string          `json:"event_id"`
		Type       string          `json:"type"`
		OccurredOn time.Time       `json:"occurred_on"`
		Attributes json.RawMessage `json:"attributes"`
	}
	require.NoError(t, json.Unmarshal(decoded["data"], &data))
	require.Equal(t, ev.EventID(), data.EventID)
	require.Equal(t, "ai.topics.added", data.Type)
	require.False(t, data.OccurredOn.IsZero())

	var attrs map[string]interface{}
	require.NoError(t, json.Unmarshal(data.Attributes, &attrs))
	require.Equal(t, "entry-1", attrs["aggregate_id"])
	require.Equal(t, "user-1", attrs["user_id"])
	require.NotContains(t, attrs, "event_id")
}

func TestUnmarshalRoundTrip(t *testing.T) {
	ev := &QuestionsGenerated{
		Header:         NewHeader(),
		QuizID:         "quiz-1",
		UserID:         "user-1",
		BankID:         "bank-1",
		TotalEntries:   2,
		QuestionsSoFar: 4,
		TotalChunks:    5,
		ChunkIndex:     4,
		Entry: &EntryResult{
			ID:                "entry-2",
			PageTitle:         "Photosynthesis",
			WordCountAnalyzed: 412,
			ChunkIndex:        2,
			TotalEntryChunks:  3,
			Questions: []GeneratedQuestion{{
				Question: "What does chlorophyll absorb?",
				Type:     "MULTIPLE_CHOICE",
				Options: []GeneratedOption{
					{OptionText: "Light", OptionExplanation: "Correct.", IsCorrect: true},
					{OptionText: "Soil", OptionExplanation: "Soil is not absorbed.", IsCorrect: false},
				},
			}},
		},
	}

	raw, err := Marshal(ev)
	require.NoError(t, err)

	decoded, err := Unmarshal(raw)
	require.NoError(t, err)

	got, ok := decoded.(*QuestionsGenerated)
	require.True(t, ok)
	require.Equal(t, ev.EventID(), got.EventID())
	require.Equal(t, ev.QuizID, got.QuizID)
	require.Equal(t, ev.TotalChunks, got.TotalChunks)
	require.NotNil(t, got.Entry)
	require.Equal(t, ev.Entry.Questions, got.Entry.Questions)
	require.True(t, got.LastChunk())
	require.True(t, got.LastEntryChunk())
}

func TestUnmarshalUnknownType(t *testing.T) {
	raw := []byte(`{"data":{"event_id":"e1","type":"something.else","occurred_on":"2024-01-01T00:00:00Z","attributes":{}},"meta":{}}`)

	_, err := Unmarshal(raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "something.else")
}

func TestUnmarshalMissingEventID(t *testing.T) {
	raw := []byte(`{"data":{"type":"quiz.created","occurred_on":"2024-01-01T00:00:00Z","attributes":{}},"meta":{}}`)

	_, err := Unmarshal(raw)
	require.Error(t, err)
}

func TestLastChunkEmptyQuiz(t *testing.T) {
	ev := &QuestionsGenerated{Header: NewHeader(), TotalChunks: 0, ChunkIndex: 0}
	require.True(t, ev.LastChunk())

	ev = &QuestionsGenerated{Header: NewHeader(), TotalChunks: 5, ChunkIndex: 2}
	require.False(t, ev.LastChunk())
}

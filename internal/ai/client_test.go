package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/snippetquiz/services/core/config"
)

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func newTestClient(url string) *Client {
	return NewClient(config.AIConfig{
		BaseURL:        url,
		APIKey:         "test-key",
		Model:          "mistralai/mistral-7b-instruct:free",
		FallbackModels: []string{"google/gemma-7b-it:free"},
	})
}

func TestCompleteRequestShape(t *testing.T) {
	var captured completionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, completionBody("hello"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	content, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, 500, TopicSchema(false))
	require.NoError(t, err)
	require.Equal(t, "hello", content)

	require.Equal(t, "mistralai/mistral-7b-instruct:free", captured.Model)
	require.Equal(t, []string{"google/gemma-7b-it:free"}, captured.Models)
	require.Equal(t, 500, captured.MaxTokens)
	require.InDelta(t, 0.7, captured.Temperature, 0.001)
	require.False(t, captured.Stream)
	require.NotNil(t, captured.ResponseFormat)
	require.Equal(t, "json_schema", captured.ResponseFormat.Type)
	require.Equal(t, "topic_generation_response", captured.ResponseFormat.JSONSchema.Name)
}

func TestCompleteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, 100, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestGenerateTopicsDegradesOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result := client.GenerateTopics(context.Background(), "some content", "Some Page", nil, nil)
	require.Empty(t, result.Topics)
}

func TestGenerateQuestionsRetriesOnGarbage(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, completionBody("this is not json at all"))
			return
		}
		fmt.Fprint(w, completionBody("```json\n{\"questions\": [{\"question\": \"Q?\", \"options\": [{\"text\": \"A\", \"correct\": true, \"explanation\": \"yes\"}]}], \"summary\": \"done\"}\n```"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	gen := client.GenerateQuestions(context.Background(), "be strict", nil, "Page", "chunk text")

	require.Equal(t, 2, calls)
	require.Len(t, gen.Questions, 1)
	require.Equal(t, "Q?", gen.Questions[0].Question)
	require.Equal(t, "done", gen.Summary)
}

func TestGenerateQuestionsGivesUpAfterTwoAttempts(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	gen := client.GenerateQuestions(context.Background(), "", nil, "Page", "chunk")

	require.Equal(t, 2, calls)
	require.Empty(t, gen.Questions)
	require.Empty(t, gen.Summary)
}

func TestTopicPromptTruncatesContent(t *testing.T) {
	long := make([]byte, topicPreviewLimit+100)
	for i := range long {
		long[i] = 'x'
	}

	prompt := TopicPrompt(string(long), "Title", []string{"Math"}, nil)
	require.Contains(t, prompt, "...")
	require.Contains(t, prompt, "Math")
	require.NotContains(t, prompt, "Character Context")
}

func TestQuizSystemPromptIncludesSummaries(t *testing.T) {
	prompt := QuizSystemPrompt("focus on dates", []string{"chapter one summary"})
	require.Contains(t, prompt, "focus on dates")
	require.Contains(t, prompt, "- chapter one summary")

	bare := QuizSystemPrompt("focus on dates", nil)
	require.NotContains(t, bare, "Previous content summaries")
}

// Package ai talks to an OpenRouter-compatible chat completions API
// and turns model output into topics and quiz questions.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/config"
)

// Message is a single chat message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// JSONSchema constrains the model output via response_format.
type JSONSchema struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	Stream         bool            `json:"stream"`
	Models         []string        `json:"models,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Client is a chat completions client with model fallback. When the
// primary model is unavailable the provider routes the request to the
// fallback models in order.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	apiKey            string
	model             string
	fallbackModels    []string
	topicMaxTokens    int
	questionMaxTokens int
}

// NewClient builds a completion client from configuration.
func NewClient(cfg config.AIConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	topicTokens := cfg.TopicMaxTokens
	if topicTokens == 0 {
		topicTokens = 500
	}
	questionTokens := cfg.QuestionMaxTokens
	if questionTokens == 0 {
		questionTokens = 1500
	}

	return &Client{
		httpClient:        &http.Client{Timeout: timeout},
		baseURL:           cfg.BaseURL,
		apiKey:            cfg.APIKey,
		model:             cfg.Model,
		fallbackModels:    cfg.FallbackModels,
		topicMaxTokens:    topicTokens,
		questionMaxTokens: questionTokens,
	}
}

// Complete performs a single chat completion call and returns the raw
// message content of the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int, schema *JSONSchema) (string, error) {
	reqBody := completionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0.7,
		Stream:      false,
		Models:      c.fallbackModels,
	}
	if schema != nil {
		reqBody.ResponseFormat = &responseFormat{Type: "json_schema", JSONSchema: schema}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", errors.Wrap(err, "marshaling completion request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "creating completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "calling completion API")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading completion response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("completion API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var completion completionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", errors.Wrap(err, "decoding completion response")
	}
	if completion.Error != nil {
		return "", errors.Errorf("completion API error %d: %s", completion.Error.Code, completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}

	return completion.Choices[0].Message.Content, nil
}

// Persona flavors the topic prompt with an assistant character.
type Persona struct {
	Name          string
	IntroPrompt   string
	EmotionPrompt string
}

// TopicResult holds generated topics plus an optional character comment.
type TopicResult struct {
	Topics  []string
	Comment string
	Emotion string
}

// GenerateTopics asks the model for 1-3 topics describing the content.
// Completion failures degrade to an empty result so that a flaky
// provider never blocks content ingestion.
func (c *Client) GenerateTopics(ctx context.Context, content, pageTitle string, existingTopics []string, persona *Persona) TopicResult {
	prompt := TopicPrompt(content, pageTitle, existingTopics, persona)
	messages := []Message{{Role: "user", Content: prompt}}
	schema := TopicSchema(persona != nil)

	response, err := c.Complete(ctx, messages, c.topicMaxTokens, schema)
	if err != nil {
		log.Warn().Err(err).Str("page_title", pageTitle).Msg("Topic completion failed, returning empty topics")
		return TopicResult{}
	}
	if response == "" {
		log.Warn().Str("page_title", pageTitle).Msg("Topic completion returned empty content")
		return TopicResult{}
	}

	return ParseTopicResponse(response)
}

// Question is a generated quiz question before persistence.
type Question struct {
	Question string   `json:"question"`
	Options  []Option `json:"options"`
}

// Option is a generated answer option.
type Option struct {
	Text        string `json:"text"`
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation"`
}

// Generation is the model output for one content chunk.
type Generation struct {
	Questions []Question `json:"questions"`
	Summary   string     `json:"summary"`
}

const maxGenerationAttempts = 2

// GenerateQuestions asks the model for questions and a summary for one
// content chunk. A failed completion or an unparseable response gets
// exactly one fresh attempt; after that the result is empty and the
// caller moves on to the next chunk.
func (c *Client) GenerateQuestions(ctx context.Context, instructions string, summaries []string, pageTitle, chunk string) Generation {
	messages := []Message{
		{Role: "system", Content: QuizSystemPrompt(instructions, summaries)},
		{Role: "user", Content: QuizPrompt(pageTitle, chunk)},
	}
	schema := QuizSchema()

	for attempt := 1; attempt <= maxGenerationAttempts; attempt++ {
		response, err := c.Complete(ctx, messages, c.questionMaxTokens, schema)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Question completion failed")
			continue
		}
		if response == "" {
			log.Warn().Int("attempt", attempt).Msg("Question completion returned empty content")
			continue
		}

		cleaned := CleanResponse(response)
		if cleaned == "" {
			log.Warn().Int("attempt", attempt).Msg("No JSON block found in question response")
			continue
		}

		var generation Generation
		if err := json.Unmarshal([]byte(cleaned), &generation); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Failed to parse question response")
			continue
		}
		return generation
	}

	log.Error().Msg("Question generation exhausted attempts, returning empty result")
	return Generation{}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package search

import (
	"bytes"
	"context"
	"encoding/json"

	"example.com/snippetquiz/services/core/config"
	"example.com/snippetquiz/services/core/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const questionIndex = "questions"

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexQuestions indexes the questions of one persisted chunk so the
// web app can search across a user's quizzes.
func (c *ElasticClient) IndexQuestions(ctx context.Context, quiz *models.Quiz, questions []models.QuizQuestion) error {
	indexName := config.FormatIndex(c.config, questionIndex)

	for i := range questions {
		question := &questions[i]

		optionTexts := make([]string, 0, len(question.Options))
		var correct string
		for _, opt := range question.Options {
			optionTexts = append(optionTexts, opt.OptionText)
			if opt.IsCorrect {
				correct = opt.OptionText
			}
		}

		doc := map[string]interface{}{
			"id":               question.ID.String(),
			"quiz_id":          quiz.ID.String(),
			"bank_id":          quiz.BankID.String(),
			"user_id":          question.UserID.String(),
			"content_entry_id": question.ContentEntryID.String(),
			"question":         question.Question,
			"type":             question.Type,
			"options":          optionTexts,
			"correct_option":   correct,
			"chunk_index":      question.ChunkIndex,
			"created_at":       question.CreatedAt,
		}

		docJSON, err := json.Marshal(doc)
		if err != nil {
			return errors.Wrap(err, "failed to marshal question document")
		}

		req := esapi.IndexRequest{
			Index:      indexName,
			DocumentID: question.ID.String(),
			Body:       bytes.NewReader(docJSON),
		}

		res, err := req.Do(ctx, c.client)
		if err != nil {
			return errors.Wrap(err, "failed to execute Elasticsearch index request")
		}
		if res.IsError() {
			var e map[string]interface{}
			if decErr := json.NewDecoder(res.Body).Decode(&e); decErr != nil {
				res.Body.Close()
				return errors.Wrap(decErr, "failed to parse Elasticsearch error response")
			}
			res.Body.Close()
			return errors.Errorf("Elasticsearch index error: %v", e)
		}
		res.Body.Close()
	}

	log.Debug().Str("quiz_id", quiz.ID.String()).Int("count", len(questions)).Msg("indexed questions")
	return nil
}

// SearchQuestions searches question documents with the given criteria
func (c *ElasticClient) SearchQuestions(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	indexName := config.FormatIndex(c.config, questionIndex)
	req := esapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}
	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		if source, ok := hitMap["_source"].(map[string]interface{}); ok {
			docs = append(docs, source)
		}
	}
	return docs, nil
}

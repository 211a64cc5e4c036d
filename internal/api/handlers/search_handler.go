package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/internal/tracing"
)

// QuestionSearcher runs queries against the question search index.
type QuestionSearcher interface {
	SearchQuestions(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error)
}

// SearchHandler serves full-text search over a user's generated questions.
type SearchHandler struct {
	searcher QuestionSearcher
	tracer   tracing.Tracer
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(searcher QuestionSearcher, tracer tracing.Tracer) *SearchHandler {
	return &SearchHandler{searcher: searcher, tracer: tracer}
}

// HandleSearchQuestions searches the caller's questions by query string.
func (h *SearchHandler) HandleSearchQuestions(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-questions")
	defer h.tracer.EndTransaction(txn)

	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.Query("user_id")
	}
	if _, err := uuid.Parse(userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid user id"})
		return
	}

	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing search query"})
		return
	}
	h.tracer.AddAttribute(txn, "query", q)

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"query_string": map[string]interface{}{
						"query":  q,
						"fields": []string{"question", "options", "correct_option"},
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"user_id": userID},
				},
			},
		},
	}

	docs, err := h.searcher.SearchQuestions(c.Request.Context(), query)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to search questions")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": docs,
		"count":   len(docs),
	})
}

// RegisterRoutes registers the handler's routes.
func (h *SearchHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/quiz/questions/search", h.HandleSearchQuestions)
}

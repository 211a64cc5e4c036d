package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/internal/fanout"
	"example.com/snippetquiz/services/core/internal/metrics"
)

// StreamHandler serves the per-user SSE progress stream.
type StreamHandler struct {
	registry fanout.Registry
	metrics  *metrics.Metrics
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(registry fanout.Registry, m *metrics.Metrics) *StreamHandler {
	return &StreamHandler{registry: registry, metrics: m}
}

// HandleStream attaches the caller to their live quiz-generation stream.
// A reconnect replaces any previous stream for the same user.
func (h *StreamHandler) HandleStream(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.Query("user_id")
	}
	if _, err := uuid.Parse(userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid user id"})
		return
	}

	stream := h.registry.Register(userID)
	defer h.registry.Unregister(stream)

	h.metrics.IncrementCounter("stream_connections")
	log.Info().Str("user_id", userID).Msg("SSE stream connected")

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-stream.Messages():
			if !ok {
				return false
			}
			c.SSEvent(eventName(msg), string(msg.Payload))
			return true
		case <-stream.Done():
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})

	log.Info().Str("user_id", userID).Msg("SSE stream disconnected")
}

// eventName maps a bridge message to its SSE event name. Quiz payloads
// carrying a completion block close the generation from the client's
// point of view.
func eventName(msg fanout.StreamMessage) string {
	if msg.Kind == fanout.KindCharacterMessage {
		return "character"
	}

	var quiz fanout.QuizMessage
	if err := json.Unmarshal(msg.Payload, &quiz); err == nil && quiz.Completed != nil {
		return "complete"
	}
	return "progress"
}

// RegisterRoutes registers the handler's routes.
func (h *StreamHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/quiz/stream", h.HandleStream)
}

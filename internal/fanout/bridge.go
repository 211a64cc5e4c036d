package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/config"
)

// Stream message kinds, used as SSE event names.
const (
	KindQuizGeneration   = "quiz-generation"
	KindCharacterMessage = "character-message"
)

// StreamMessage is one payload delivered to a user stream. The payload
// is forwarded opaquely; the bridge never inspects it.
type StreamMessage struct {
	Kind    string
	Payload json.RawMessage
}

// Stream is a single live listener for one user.
type Stream struct {
	userID    string
	ch        chan StreamMessage
	done      chan struct{}
	closeOnce sync.Once
	timer     *time.Timer
}

// Messages returns the channel carrying payloads for this stream.
func (s *Stream) Messages() <-chan StreamMessage { return s.ch }

// Done is closed when the stream is replaced or times out.
func (s *Stream) Done() <-chan struct{} { return s.done }

// UserID returns the stream owner.
func (s *Stream) UserID() string { return s.userID }

func (s *Stream) close() {
	s.closeOnce.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		close(s.done)
	})
}

// Registry tracks at most one live stream per user.
type Registry interface {
	Register(userID string) *Stream
	Unregister(s *Stream)
	Deliver(userID string, msg StreamMessage) bool
}

// Bridge subscribes to the per-user Redis channels and forwards each
// payload to the user's registered stream. Messages for users without
// a stream are dropped.
type Bridge struct {
	client      *redis.Client
	idleTimeout time.Duration
	bufferSize  int

	mu      sync.Mutex
	streams map[string]*Stream
}

// NewBridge connects the bridge to Redis. With Redis disabled the
// registry still works but no messages arrive.
func NewBridge(cfg config.RedisConfig, streamCfg config.StreamConfig) (*Bridge, error) {
	idle := streamCfg.IdleTimeout
	if idle == 0 {
		idle = 10 * time.Minute
	}
	buffer := streamCfg.BufferSize
	if buffer == 0 {
		buffer = 16
	}

	bridge := &Bridge{
		idleTimeout: idle,
		bufferSize:  buffer,
		streams:     make(map[string]*Stream),
	}

	if !cfg.Enabled {
		log.Info().Msg("Redis is disabled, stream bridge will not receive messages")
		return bridge, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "connecting to Redis for stream bridge")
	}
	bridge.client = client
	return bridge, nil
}

// Register opens a stream for a user. A user has at most one stream;
// an existing one is closed and replaced.
func (b *Bridge) Register(userID string) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.streams[userID]; ok {
		log.Info().Str("user_id", userID).Msg("Replacing existing stream")
		old.close()
	}

	stream := &Stream{
		userID: userID,
		ch:     make(chan StreamMessage, b.bufferSize),
		done:   make(chan struct{}),
	}
	// Hard connection deadline. The timer is not reset by traffic, so
	// long-lived clients must reconnect.
	stream.timer = time.AfterFunc(b.idleTimeout, func() {
		log.Info().Str("user_id", userID).Msg("Stream timed out")
		b.Unregister(stream)
	})
	b.streams[userID] = stream
	return stream
}

// Unregister closes a stream and removes it from the registry if it is
// still the active one for its user.
func (b *Bridge) Unregister(s *Stream) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if current, ok := b.streams[s.userID]; ok && current == s {
		delete(b.streams, s.userID)
	}
	s.close()
}

// Deliver pushes a message to the user's stream without blocking.
// It reports false when the user has no stream or the buffer is full.
func (b *Bridge) Deliver(userID string, msg StreamMessage) bool {
	b.mu.Lock()
	stream, ok := b.streams[userID]
	b.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case stream.ch <- msg:
		return true
	default:
		log.Warn().Str("user_id", userID).Str("kind", msg.Kind).Msg("Stream buffer full, dropping message")
		return false
	}
}

// Run consumes the Redis channels until the context is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	if b.client == nil {
		<-ctx.Done()
		return nil
	}

	sub := b.client.PSubscribe(ctx, QuizChannelPrefix+"*", CharacterChannelPrefix+"*")
	defer sub.Close()

	// Confirm the subscription before consuming.
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribing to fan-out channels")
	}

	log.Info().Msg("Stream bridge subscribed to fan-out channels")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(msg)
		}
	}
}

func (b *Bridge) forward(msg *redis.Message) {
	userID := msg.Channel[strings.LastIndexByte(msg.Channel, ':')+1:]

	kind := KindQuizGeneration
	if strings.HasPrefix(msg.Channel, CharacterChannelPrefix) {
		kind = KindCharacterMessage
	}

	delivered := b.Deliver(userID, StreamMessage{Kind: kind, Payload: json.RawMessage(msg.Payload)})
	if !delivered {
		log.Debug().Str("channel", msg.Channel).Msg("No listener for message, dropped")
	}
}

// Close releases the Redis connection.
func (b *Bridge) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

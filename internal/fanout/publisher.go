package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snippetquiz/services/core/config"
)

// Publisher sends fan-out payloads to the per-user Redis channels.
type Publisher struct {
	client  *redis.Client
	enabled bool
}

// NewPublisher connects to Redis and verifies the connection. With
// Redis disabled in config every publish becomes a logged no-op.
func NewPublisher(cfg config.RedisConfig) (*Publisher, error) {
	if !cfg.Enabled {
		log.Info().Msg("Redis fan-out is disabled")
		return &Publisher{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "connecting to Redis for fan-out")
	}
	return &Publisher{client: client, enabled: true}, nil
}

// PublishQuizProgress sends a quiz progress or completion payload.
func (p *Publisher) PublishQuizProgress(ctx context.Context, userID string, msg QuizMessage) error {
	return p.publish(ctx, QuizChannel(userID), msg)
}

// PublishCharacterMessage sends an ephemeral character comment.
func (p *Publisher) PublishCharacterMessage(ctx context.Context, userID string, msg CharacterMessage) error {
	return p.publish(ctx, CharacterChannel(userID), msg)
}

func (p *Publisher) publish(ctx context.Context, channel string, payload interface{}) error {
	if !p.enabled {
		log.Debug().Str("channel", channel).Msg("Fan-out disabled, dropping message")
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshaling fan-out payload")
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return errors.Wrapf(err, "publishing to channel %s", channel)
	}
	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

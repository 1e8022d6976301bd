package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gocomet/ridematch/pkg/logger"
)

// Envelope is one emission as it travels between instances. Exactly one of Room
// and ConnIDs is set.
type Envelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room,omitempty"`
	ConnIDs []string        `json:"connIds,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Backplane relays envelopes to every other instance
type Backplane interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe delivers envelopes to handle until ctx is cancelled.
	Subscribe(ctx context.Context, handle func(Envelope)) error
}

// RedisBackplane is a Backplane on a Redis pub/sub channel
type RedisBackplane struct {
	client  redis.UniversalClient
	channel string
	logger  *logger.Logger
}

// NewRedisBackplane creates a backplane on channel
func NewRedisBackplane(client redis.UniversalClient, channel string, log *logger.Logger) *RedisBackplane {
	if channel == "" {
		channel = "ridematch:fanout"
	}
	return &RedisBackplane{client: client, channel: channel, logger: log}
}

// Publish implements Backplane
func (b *RedisBackplane) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Subscribe implements Backplane. The go-redis subscription reconnects on its own,
// so this only returns once ctx is done.
func (b *RedisBackplane) Subscribe(ctx context.Context, handle func(Envelope)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("Dropping malformed backplane message", logger.Err(err))
				continue
			}
			handle(env)
		}
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultChannelPrefix namespaces per-user Redis channels.
const DefaultChannelPrefix = "user_events:"

// RedisRelay publishes envelopes to per-user Redis channels and forwards
// everything it receives on those channels into a local Hub. Every process
// runs one relay, so a session connected to any instance sees events
// produced by any other.
type RedisRelay struct {
	Client *redis.Client
	Hub    *Hub
	Prefix string
}

// NewRedisRelay returns a relay bridging client and hub.
func NewRedisRelay(client *redis.Client, hub *Hub) *RedisRelay {
	return &RedisRelay{Client: client, Hub: hub, Prefix: DefaultChannelPrefix}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// Channel returns the Redis channel for userID.
func (r *RedisRelay) Channel(userID string) string { return r.Prefix + userID }

// Publish implements Publisher. When Redis is unreachable the envelope is
// delivered to local sessions only; remote sessions recover it from the
// persisted backlog on their next connect.
func (r *RedisRelay) Publish(ctx context.Context, userID string, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := r.Client.Publish(ctx, r.Channel(userID), b).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("type", env.Type).Msg("redis publish failed; delivering locally")
		return r.Hub.Publish(ctx, userID, env)
	}
	return nil
}

// Run subscribes to every user channel and forwards messages into the Hub
// until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.Client.PSubscribe(ctx, r.Prefix+"*")
	defer pubsub.Close()

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	log.Info().Str("pattern", r.Prefix+"*").Msg("realtime relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.dispatch(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (r *RedisRelay) dispatch(ctx context.Context, channel, payload string) {
	userID := strings.TrimPrefix(channel, r.Prefix)
	if userID == "" || userID == channel {
		return
	}
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("dropping malformed realtime payload")
		return
	}
	_ = r.Hub.Publish(ctx, userID, env)
}

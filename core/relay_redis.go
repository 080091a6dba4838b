package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "chat:room:"

// OpenRedis connects to the server at url and checks that it answers.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisRelay shares room events between instances through Redis pub/sub.
// Each room maps to the channel "chat:room:{room_id}".
type RedisRelay struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisRelay(client *redis.Client, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, roomID string, e *Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	if err := r.client.Publish(ctx, roomChannelPrefix+roomID, b).Err(); err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (r *RedisRelay) Subscribe(ctx context.Context, ready func(), deliver func(roomID string, e *Event)) error {
	pubsub := r.client.PSubscribe(ctx, roomChannelPrefix+"*")
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("PSubscribe: %w", err)
	}
	ready()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription closed")
			}
			roomID := strings.TrimPrefix(msg.Channel, roomChannelPrefix)
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				r.logger.Error(fmt.Sprintf("relay: decode event: %v", err))
				continue
			}
			deliver(roomID, &e)
		}
	}
}

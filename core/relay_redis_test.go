package core

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBroker(t *testing.T, addr string) *Broker {
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	b := NewBroker(WithRelay(NewRedisRelay(client, slog.Default())), WithRelayRetry(time.Hour, time.Hour))
	b.Start(context.Background())
	t.Cleanup(b.Close)
	return b
}

func TestOpenRedis(t *testing.T) {
	ctx := context.Background()

	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := OpenRedis(ctx, "redis://"+mr.Addr())
		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, client.Ping(ctx).Err())
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := OpenRedis(ctx, "http://localhost")
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := OpenRedis(ctx, "redis://"+addr)
		assert.Error(t, err)
	})
}

func TestRedisRelay_SharesEventsBetweenBrokers(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	first := newRedisBroker(t, mr.Addr())
	second := newRedisBroker(t, mr.Addr())
	require.True(t, first.RelayUp())
	require.True(t, second.RelayUp())

	sub := newTestSubscriber("sub", 10)
	require.NoError(t, first.Join(ctx, "r1", "u1", sub))
	assert.Equal(t, "u1", sub.next(t)["userId"])

	require.NoError(t, second.Broadcast(ctx, "r1", map[string]string{"text": "from second"}))
	assert.Equal(t, "from second", sub.next(t)["text"])

	require.NoError(t, second.Broadcast(ctx, "r2", map[string]string{"text": "elsewhere"}))
	sub.expectNone(t)
}

func TestRedisRelay_SkipsUndecodableMessages(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	b := newRedisBroker(t, mr.Addr())

	sub := newTestSubscriber("sub", 10)
	require.NoError(t, b.Join(ctx, "r1", "u1", sub))
	sub.next(t)

	mr.Publish(roomChannelPrefix+"r1", "not json")
	require.NoError(t, b.Broadcast(ctx, "r1", map[string]string{"text": "valid"}))
	assert.Equal(t, "valid", sub.next(t)["text"])
	sub.expectNone(t)
}

func TestRedisRelay_UnreachableServerDeliversLocally(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	b := newRedisBroker(t, addr)
	assert.False(t, b.RelayUp())

	sub := newTestSubscriber("sub", 10)
	require.NoError(t, b.Join(ctx, "r1", "u1", sub))
	assert.Equal(t, "u1", sub.next(t)["userId"])
}

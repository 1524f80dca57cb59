package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"behaviorguard/internal/infrastructure/config"
)

func testRedisConfig(addr string) *config.RedisConfig {
	return &config.RedisConfig{
		Addr:        addr,
		PoolSize:    2,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	}
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := zaptest.NewLogger(t)

	t.Run("connects and pings", func(t *testing.T) {
		b, err := New(testRedisConfig(mr.Addr()), "behavioral-stream", logger)
		require.NoError(t, err)
		defer b.Close()

		assert.NoError(t, b.Ping(context.Background()))
	})

	t.Run("requires a channel", func(t *testing.T) {
		_, err := New(testRedisConfig(mr.Addr()), "", logger)
		assert.Error(t, err)
	})

	t.Run("fails when redis is unreachable", func(t *testing.T) {
		_, err := New(testRedisConfig("127.0.0.1:1"), "behavioral-stream", logger)
		assert.Error(t, err)
	})
}

func TestBroker_PublishSubscribeRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := zaptest.NewLogger(t)

	b, err := New(testRedisConfig(mr.Addr()), "behavioral-stream", logger)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	sub := b.Subscribe(ctx)
	defer sub.Close()

	payload := []byte(`{"user_id":"user-1","event_type":"mousemove","x":10,"y":20,"timestamp":1000}`)

	// Republish on a short interval until delivery; the subscription
	// registers asynchronously on the server side.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(2 * time.Second)

	require.NoError(t, b.Publish(ctx, payload))
	for {
		select {
		case msg := <-sub.Messages():
			assert.Equal(t, "behavioral-stream", msg.Channel)
			assert.Equal(t, string(payload), msg.Payload)
			return
		case <-ticker.C:
			require.NoError(t, b.Publish(ctx, payload))
		case <-deadline:
			t.Fatal("timed out waiting for published message")
		}
	}
}

func TestSubscription_CloseEndsStream(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := zaptest.NewLogger(t)

	b, err := New(testRedisConfig(mr.Addr()), "behavioral-stream", logger)
	require.NoError(t, err)
	defer b.Close()

	sub := b.Subscribe(context.Background())
	require.NoError(t, sub.Close())

	select {
	case _, open := <-sub.Messages():
		assert.False(t, open, "message channel must close with the subscription")
	case <-time.After(2 * time.Second):
		t.Fatal("message channel did not close")
	}
}

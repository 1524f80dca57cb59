// Package broker wraps Redis pub/sub as the event fan-out channel
// between gateway instances and persistence consumers. Delivery is
// at-most-once and non-durable: messages published while no consumer is
// attached are lost.
package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"behaviorguard/internal/infrastructure/config"
)

// Broker is a shared, reusable client safe for concurrent publish calls.
type Broker struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg *config.RedisConfig, channel string, logger *zap.Logger) (*Broker, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("broker channel is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("broker connected",
		zap.String("addr", cfg.Addr),
		zap.String("channel", channel))

	return &Broker{
		client:  client,
		channel: channel,
		logger:  logger,
	}, nil
}

// Publish sends one enriched event payload to the channel. There is no
// delivery acknowledgment; failures are returned for the caller to log.
func (b *Broker) Publish(ctx context.Context, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", b.channel, err)
	}
	return nil
}

// Ping verifies the broker is reachable.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Subscribe attaches to the channel and returns a subscription whose
// message channel closes when the subscription is lost or closed.
func (b *Broker) Subscribe(ctx context.Context) *Subscription {
	pubsub := b.client.Subscribe(ctx, b.channel)
	return &Subscription{pubsub: pubsub, channel: b.channel}
}

// Close releases the underlying Redis connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

// Subscription is one attached consumer of the broker channel.
type Subscription struct {
	pubsub  *redis.PubSub
	channel string
}

// Messages returns the stream of raw payloads. The channel is closed
// when the subscription terminates.
func (s *Subscription) Messages() <-chan *redis.Message {
	return s.pubsub.Channel()
}

// Close unsubscribes and releases the subscription's connection.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

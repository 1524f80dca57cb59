// Package consumer runs the broker-to-Postgres persistence loop. One
// consumer holds one subscription and processes messages strictly in
// receive order; it survives individual parse and write failures
// indefinitely and exits only on shutdown or subscription loss.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"behaviorguard/internal/domain/event"
	"behaviorguard/internal/infrastructure/broker"
	"behaviorguard/internal/metrics"
)

// ErrSubscriptionLost is returned when the broker closes the message
// stream from under a running consumer.
var ErrSubscriptionLost = errors.New("broker subscription lost")

// EventWriter persists one event per call.
type EventWriter interface {
	Insert(ctx context.Context, e *event.BehavioralEvent) error
}

// Consumer is the persistence stage of the pipeline.
type Consumer struct {
	broker       *broker.Broker
	repo         EventWriter
	logger       *zap.Logger
	metrics      *metrics.Registry
	writeTimeout time.Duration
}

// New creates a consumer. writeTimeout bounds each datastore write.
func New(b *broker.Broker, repo EventWriter, m *metrics.Registry, writeTimeout time.Duration, logger *zap.Logger) *Consumer {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Consumer{
		broker:       b,
		repo:         repo,
		logger:       logger.Named("consumer"),
		metrics:      m,
		writeTimeout: writeTimeout,
	}
}

// Run subscribes to the broker channel and processes messages until
// ctx is cancelled (clean shutdown, returns nil) or the subscription
// is lost (returns ErrSubscriptionLost). Either way the subscription
// is released before returning.
func (c *Consumer) Run(ctx context.Context) error {
	sub := c.broker.Subscribe(ctx)
	defer sub.Close()

	c.logger.Info("consumer subscribed, waiting for messages")

	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Error("subscription channel closed")
				return ErrSubscriptionLost
			}
			c.handleMessage(ctx, []byte(msg.Payload))
		}
	}
}

// handleMessage parses and persists one message. Failures are logged
// and isolated; the loop continues regardless of outcome.
func (c *Consumer) handleMessage(ctx context.Context, payload []byte) {
	var e event.BehavioralEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		c.logger.Warn("dropping unparseable message", zap.Error(err))
		c.metrics.MessagesDropped.Inc()
		return
	}
	if e.EventType == "" || e.UserID == "" {
		c.logger.Warn("dropping message missing required fields",
			zap.String("event_type", e.EventType),
			zap.String("user_id", e.UserID))
		c.metrics.MessagesDropped.Inc()
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := c.repo.Insert(writeCtx, &e); err != nil {
		c.logger.Error("event write failed, rolled back",
			zap.String("user_id", e.UserID),
			zap.String("event_type", e.EventType),
			zap.Error(err))
		c.metrics.PersistenceFailures.Inc()
		return
	}
	c.metrics.EventsPersisted.Inc()
}

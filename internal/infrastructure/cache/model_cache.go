package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"behaviorguard/internal/infrastructure/config"
	"behaviorguard/internal/infrastructure/repository"
)

// ErrCacheMiss indicates the key was absent.
var ErrCacheMiss = errors.New("cache miss")

// ModelCache is a write-through Redis cache for trained model
// artifacts. A miss falls back to the model store; entries expire so a
// stale artifact cannot outlive a retraining on another instance by
// more than the TTL.
type ModelCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewModelCache connects to Redis and verifies the connection.
func NewModelCache(cfg *config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*ModelCache, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
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

	return &ModelCache{client: client, ttl: ttl, logger: logger}, nil
}

func modelKey(userID string) string {
	return "model:" + userID
}

// Get returns the cached artifact for the user, or ErrCacheMiss.
func (c *ModelCache) Get(ctx context.Context, userID string) (*repository.ModelArtifact, error) {
	data, err := c.client.Get(ctx, modelKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var a repository.ModelArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		// A corrupt entry is treated as a miss so the store stays
		// authoritative.
		c.logger.Warn("dropping corrupt cached model", zap.String("user_id", userID), zap.Error(err))
		c.client.Del(ctx, modelKey(userID))
		return nil, ErrCacheMiss
	}
	return &a, nil
}

// Set stores the artifact with the configured TTL.
func (c *ModelCache) Set(ctx context.Context, artifact *repository.ModelArtifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshaling model artifact: %w", err)
	}
	if err := c.client.Set(ctx, modelKey(artifact.UserID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Ping verifies the cache is reachable.
func (c *ModelCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (c *ModelCache) Close() error {
	return c.client.Close()
}

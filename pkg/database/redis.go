package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wagerworks/sqlgen/pkg/config"
)

// NewRedisClient creates a Redis client for the remote cache store.
// Returns nil when Redis is not configured (host is empty); callers fall
// back to the in-process store.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

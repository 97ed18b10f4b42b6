package messaging

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"dizzycode.xyz/strategy-engine/internal/infrastructure/config"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// RedisClient wraps redis.Client with logging and health check
type RedisClient struct {
	rdb    *redis.Client
	logger logger.Logger
}

// NewRedisClient creates a new Redis client with connection validation
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*RedisClient, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	log.Info("Redis client connected", map[string]any{
		"addr": cfg.Addr,
		"db":   cfg.DB,
	})

	return &RedisClient{
		rdb:    rdb,
		logger: log,
	}, nil
}

// Client returns the underlying redis.Client for direct access
func (c *RedisClient) Client() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.rdb.Close()
}

// Ping checks if the connection is alive
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

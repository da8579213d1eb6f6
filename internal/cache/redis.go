package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// RedisCache stores each scope as one Redis hash of cell key to raw value.
type RedisCache struct {
	redis  *redis.Client
	prefix string
	log    *logrus.Logger
}

// NewRedisCache connects to the Redis server named by config.RedisURL.
func NewRedisCache(config domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("addr", opts.Addr).Info("Raw value cache connected to Redis")
	return NewRedisCacheFromClient(client, config.KeyPrefix, logger), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, prefix string, logger *logrus.Logger) *RedisCache {
	return &RedisCache{redis: client, prefix: prefix, log: logger}
}

func (c *RedisCache) key(scope string) string {
	if c.prefix == "" {
		return "raw:" + scope
	}
	return c.prefix + ":raw:" + scope
}

// Load returns the values cached under scope.
func (c *RedisCache) Load(ctx context.Context, scope string) (map[domain.CellKey]string, error) {
	fields, err := c.redis.HGetAll(ctx, c.key(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load raw values: %w", err)
	}
	out := make(map[domain.CellKey]string, len(fields))
	for k, v := range fields {
		out[domain.CellKey(k)] = v
	}
	return out, nil
}

// Put records one raw value.
func (c *RedisCache) Put(ctx context.Context, scope string, key domain.CellKey, value string) error {
	if err := c.redis.HSet(ctx, c.key(scope), string(key), value).Err(); err != nil {
		return fmt.Errorf("failed to cache raw value: %w", err)
	}
	return nil
}

// Clear drops everything cached under scope.
func (c *RedisCache) Clear(ctx context.Context, scope string) error {
	if err := c.redis.Del(ctx, c.key(scope)).Err(); err != nil {
		return fmt.Errorf("failed to clear raw values: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}

// Package cache provides the Redis layer: the identity lookaside and
// the free-usage counter.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps the Redis client shared by the identity lookaside, the
// usage counter and the usage event stream.
type Cache struct {
	client *redis.Client
}

// New connects to Redis at the given URL and verifies the connection
// with a ping.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Every authenticated request touches Redis at least once (identity
	// lookup, then a counter reservation on the free tier), so the pool
	// runs a little larger than the Postgres one.
	opt.PoolSize = 20
	opt.MinIdleConns = 4
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Ping checks Redis connectivity for the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the raw client for the usage event stream, which
// speaks XADD/XREADGROUP directly. Everything else goes through Cache
// methods.
func (c *Cache) Client() *redis.Client {
	return c.client
}

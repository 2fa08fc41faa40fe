// Package cache holds the Redis-backed temporary link cache, principal
// cache and rate limiter.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pool sizes the Redis connection pool. Zero fields fall back to
// defaultPool.
type Pool struct {
	Size        int
	MinIdle     int
	WaitTimeout time.Duration
	MaxIdleTime time.Duration
}

var defaultPool = Pool{
	Size:        10,
	MinIdle:     2,
	WaitTimeout: 4 * time.Second,
	MaxIdleTime: 5 * time.Minute,
}

func (p Pool) withDefaults() Pool {
	if p.Size <= 0 {
		p.Size = defaultPool.Size
	}
	if p.MinIdle < 0 || p.MinIdle > p.Size {
		p.MinIdle = min(defaultPool.MinIdle, p.Size)
	}
	if p.WaitTimeout <= 0 {
		p.WaitTimeout = defaultPool.WaitTimeout
	}
	if p.MaxIdleTime <= 0 {
		p.MaxIdleTime = defaultPool.MaxIdleTime
	}
	return p
}

// Cache is the Redis client shared by link lookups, principals and
// rate limits.
type Cache struct {
	client *redis.Client
}

// New dials redisURL and fails unless the server answers a PING.
func New(ctx context.Context, redisURL string, pool Pool) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	pool = pool.withDefaults()
	opt.PoolSize = pool.Size
	opt.MinIdleConns = pool.MinIdle
	opt.PoolTimeout = pool.WaitTimeout
	opt.ConnMaxIdleTime = pool.MaxIdleTime

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return &Cache{client: client}, nil
}

// Ping backs the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the connection for the link event publisher.
func (c *Cache) Client() *redis.Client {
	return c.client
}

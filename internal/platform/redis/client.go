// Package redis opens the shared Redis connection used for idempotency keys.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sanad/internal/platform/config"
)

// Client embeds the go-redis client so callers use it directly.
type Client struct {
	*redis.Client
}

// New dials and pings Redis. It returns nil, nil when no URL is configured,
// which callers treat as "use the in-memory fallback".
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{Client: client}, nil
}

// Health is wired into GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Package redis provides the Redis-backed featurization cache and the
// distributed training lock.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/pkg/errors"
)

// Config holds Redis connection settings.
type Config struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	DefaultTTL time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// Client wraps the go-redis client with the platform's key prefix and TTL
// conventions.
type Client struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger logging.Logger
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg Config, logger logging.Logger) (*Client, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to connect to redis at "+cfg.Addr)
	}

	logger.Info("redis connected", logging.String("addr", cfg.Addr))
	return &Client{rdb: rdb, prefix: cfg.KeyPrefix, ttl: cfg.DefaultTTL, logger: logger}, nil
}

// NewClientWithBackend injects an existing redis client, for tests using
// miniredis or mocks.
func NewClientWithBackend(rdb redis.UniversalClient, prefix string, ttl time.Duration, logger logging.Logger) *Client {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Client{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

// key applies the platform prefix.
func (c *Client) key(k string) string { return c.prefix + k }

// Close releases the connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "redis ping failed")
	}
	return nil
}

package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"digisafe/internal/platform/config"
)

// clientName tags the medium's connections in CLIENT LIST.
const clientName = "digisafe-medium"

// Client is the connection the redis medium reads and writes its image
// through. Each medium byte is one command, so the pool stays small.
type Client struct {
	*redis.Client
}

// New dials the server named by cfg.URL and pings it. The medium cannot run
// without a reachable server, so a failed ping is returned rather than
// deferred to the first read.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// options parses cfg.URL and layers the non-zero settings of cfg over it, so
// query parameters in the URL survive when the environment leaves a field
// unset.
func options(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	// Medium calls carry the machine's context; a cancelled step must not
	// wait out the socket timeouts.
	opts.ContextTimeoutEnabled = true
	if opts.ClientName == "" {
		opts.ClientName = clientName
	}
	return opts, nil
}

// Health pings the server. It backs the redis entry of /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Package redis opens the shared Redis pool used for declaration locks.
package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"irpf/internal/platform/config"
)

// Client wraps the go-redis client with health and pool reporting.
type Client struct {
	*redis.Client
}

// New connects using cfg. It returns (nil, nil) when no URL is configured so
// callers can fall back to in-process locks.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := &Client{Client: redis.NewClient(opts)}
	if err := client.Health(ctx); err != nil {
		_ = client.Client.Close()
		return nil, err
	}
	return client, nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// RegisterPoolMetrics exposes connection pool gauges on reg.
func (c *Client) RegisterPoolMetrics(reg prometheus.Registerer) error {
	gauges := map[string]func(*redis.PoolStats) uint32{
		"irpf_redis_pool_total_conns": func(s *redis.PoolStats) uint32 { return s.TotalConns },
		"irpf_redis_pool_idle_conns":  func(s *redis.PoolStats) uint32 { return s.IdleConns },
		"irpf_redis_pool_timeouts":    func(s *redis.PoolStats) uint32 { return s.Timeouts },
	}
	for name, read := range gauges {
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: name,
			Help: "Redis connection pool statistic " + name,
		}, func() float64 { return float64(read(c.PoolStats())) })
		if err := reg.Register(g); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

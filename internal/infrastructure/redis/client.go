// Package redis holds the optional Redis adapters: the session registry cache
// and the per-session scan lock.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings. An empty Addr disables Redis.
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTtl"`
	LockTTL  time.Duration `yaml:"lockTtl"`
}

func DefaultConfig() *Config {
	return &Config{
		PoolSize: 20,
		CacheTTL: 30 * time.Second,
		LockTTL:  30 * time.Second,
	}
}

func (c *Config) Enabled() bool {
	return c != nil && c.Addr != ""
}

// NewClient connects and pings Redis
func NewClient(ctx context.Context, config *Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", config.Addr, err)
	}
	return client, nil
}

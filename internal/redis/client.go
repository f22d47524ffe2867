package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-box-booking/internal/config"
)

// Options returns client options for the configured Redis. The read timeout
// never drops below the lock wait so a polling writer is not cut off mid-acquire.
func Options(cfg config.Config) *redis.Options {
	readTimeout := 2 * time.Second
	if cfg.LockWait > readTimeout {
		readTimeout = cfg.LockWait
	}
	return &redis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		DB:           0,
		ReadTimeout:  readTimeout,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	}
}

// Connect opens a client and pings it within five seconds.
func Connect(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	rdb := redis.NewClient(Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// Ping adapts a client to a readiness probe.
func Ping(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

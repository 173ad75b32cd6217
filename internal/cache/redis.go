// Package cache wraps Redis for state shared between API instances.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/config"
	"github.com/PaulBabatuyi/skillswap/internal/logging"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 2 * time.Second

// ErrDisabled is returned by New when no Redis address is configured.
var ErrDisabled = errors.New("redis not configured")

// Redis is a connected client.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// New connects to cfg.Addr and pings it.
func New(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, ErrDisabled
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          0,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	r := &Redis{client: client, logger: logging.OrDiscard(logger)}
	r.logger.Info("redis connected", "addr", cfg.Addr)
	return r, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Warn("redis close failed", "error", err)
		return err
	}
	return nil
}

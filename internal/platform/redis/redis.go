package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kbassist/internal/config"
)

const pingTimeout = 3 * time.Second

// New connects the history cache client and fails fast when the server is unreachable.
func New(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.PoolSize / 4,
		DialTimeout:  pingTimeout,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	client := redis.NewClient(opts)

	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s failed: %w", cfg.Addr, err)
	}
	logger.Info("redis ready", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB), zap.Int("pool_size", cfg.PoolSize))
	return client, nil
}

// Ping is the health probe shared by startup and /healthz.
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return errors.New("redis client not initialised")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

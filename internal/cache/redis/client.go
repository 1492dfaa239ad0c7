package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/movie-rec/backend/pkg/logger"
)

const keyPrefix = "stats:"

// Client stores aggregates in Redis so several API replicas share one
// computation. Entries carry no TTL; they are removed by Prune on reload.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis stats store initialized", zap.String("addr", addr))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get stats: %w", err)
	}

	logger.Debug("Stats store hit", zap.String("key", key))
	return data, true, nil
}

func (c *Client) Set(ctx context.Context, key string, data []byte) error {
	if err := c.client.Set(ctx, keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set stats: %w", err)
	}

	logger.Debug("Stats persisted", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

func (c *Client) Prune(ctx context.Context, keep string) error {
	keepKey := keyPrefix + keep
	deleted := 0

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if iter.Val() == keepKey {
			continue
		}
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete stats key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate stats keys: %w", err)
	}

	logger.Info("Stale stats pruned", zap.Int("count", deleted))
	return nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/confide-ai/confide-backend/internal/logger"
)

// NewRedisClient opens the shared go-redis client used by the cache, the
// stream transport and the cache-backed store engine.
func NewRedisClient(log *logger.Logger, address, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	log.Info("Connected to Redis", "address", address)
	return client, nil
}

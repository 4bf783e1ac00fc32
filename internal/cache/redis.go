package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/confide-ai/confide-backend/internal/logger"
)

// DefaultTTL is applied by callers that cache derived, expendable copies.
const DefaultTTL = time.Hour

type RedisCache struct {
	log    *logger.Logger
	client *redis.Client
}

func NewRedisCache(log *logger.Logger, client *redis.Client) *RedisCache {
	return &RedisCache{
		log:    log.With("component", "RedisCache"),
		client: client,
	}
}

func (rc *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %q: %w", key, err)
	}
	return val, true, nil
}

func (rc *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := rc.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func (rc *RedisCache) MGet(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raws, err := rc.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache mget: %w", err)
	}
	vals := make([]string, 0, len(raws))
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		if s, ok := raw.(string); ok {
			vals = append(vals, s)
		}
	}
	return vals, nil
}

func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if err := rc.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := rc.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists %q: %w", key, err)
	}
	return n != 0, nil
}

func (rc *RedisCache) Readiness(ctx context.Context) error {
	probe := uuid.NewString()
	if err := rc.client.Set(ctx, probe, "dummy", time.Minute).Err(); err != nil {
		return err
	}
	if err := rc.client.Get(ctx, probe).Err(); err != nil {
		return err
	}
	return rc.client.Del(ctx, probe).Err()
}

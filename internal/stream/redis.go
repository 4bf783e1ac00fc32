package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/confide-ai/confide-backend/internal/logger"
)

const (
	streamPrefix = "stream"
	streamField  = "message"

	// readBlock bounds each XREAD so a dead producer cannot pin the
	// consumer; hitting it is treated as end of stream.
	readBlock = 10 * time.Second

	// paceInterval caps delivery at ~8 fragments/second per connection.
	paceInterval = 125 * time.Millisecond
)

type RedisStream struct {
	log    *logger.Logger
	client *redis.Client
}

func NewRedisStream(log *logger.Logger, client *redis.Client) *RedisStream {
	return &RedisStream{
		log:    log.With("component", "RedisStream"),
		client: client,
	}
}

func (rs *RedisStream) Push(ctx context.Context, token uuid.UUID, content string) error {
	err := rs.client.XAdd(ctx, &redis.XAddArgs{
		Stream: rs.key(token),
		Values: map[string]interface{}{streamField: content},
	}).Err()
	if err != nil {
		return fmt.Errorf("stream push: %w", err)
	}
	return nil
}

func (rs *RedisStream) End(ctx context.Context, token uuid.UUID) error {
	return rs.Push(ctx, token, Stopword)
}

func (rs *RedisStream) Tail(ctx context.Context, token uuid.UUID, shouldStop func() bool) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		lastID := "0"
	loop:
		for {
			if shouldStop != nil && shouldStop() {
				break
			}
			res, err := rs.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{rs.key(token), lastID},
				Block:   readBlock,
			}).Result()
			if err != nil {
				// redis.Nil is the blocking-read timeout: the producer went
				// quiet, treat as end rather than error.
				if err != redis.Nil && ctx.Err() == nil {
					rs.log.Warn("stream read failed", "token", token, "error", err)
				}
				break
			}
			for _, msg := range res[0].Messages {
				lastID = msg.ID
				content, _ := msg.Values[streamField].(string)
				if content == Stopword {
					break loop
				}
				select {
				case out <- content:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-time.After(paceInterval):
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- Stopword:
		case <-ctx.Done():
		}
	}()
	return out
}

func (rs *RedisStream) Clean(ctx context.Context, token uuid.UUID) error {
	if err := rs.client.Del(ctx, rs.key(token)).Err(); err != nil {
		return fmt.Errorf("stream clean: %w", err)
	}
	return nil
}

func (rs *RedisStream) Readiness(ctx context.Context) error {
	probe := uuid.NewString()
	if err := rs.client.Set(ctx, probe, "dummy", time.Minute).Err(); err != nil {
		return err
	}
	if err := rs.client.Get(ctx, probe).Err(); err != nil {
		return err
	}
	return rs.client.Del(ctx, probe).Err()
}

func (rs *RedisStream) key(token uuid.UUID) string {
	return fmt.Sprintf("%s:%s", streamPrefix, token)
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/types"
)

// RedisStore is the pure-cache engine: every entity lives in Redis under the
// logical key layout, with native expiry backing the secret TTL. Retrieval
// order is not guaranteed by KEYS, so lists are sorted on created_at at read
// time.
type RedisStore struct {
	log    *logger.Logger
	client *redis.Client
}

func NewRedisStore(log *logger.Logger, client *redis.Client) *RedisStore {
	return &RedisStore{
		log:    log.With("store", "RedisStore"),
		client: client,
	}
}

func (rs *RedisStore) UserGet(ctx context.Context, externalID string) (*types.User, error) {
	raw, err := rs.client.Get(ctx, userKey(externalID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	var user types.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	return &user, nil
}

func (rs *RedisStore) UserSet(ctx context.Context, user *types.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := rs.client.Set(ctx, userKey(user.ExternalID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (rs *RedisStore) ConversationGet(ctx context.Context, conversationID, userID uuid.UUID) (*types.Conversation, error) {
	raw, err := rs.client.Get(ctx, conversationKey(userID, conversationID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	var conversation types.Conversation
	if err := json.Unmarshal([]byte(raw), &conversation); err != nil {
		return nil, fmt.Errorf("failed to parse conversation: %w", err)
	}
	return &conversation, nil
}

func (rs *RedisStore) ConversationExists(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	n, err := rs.client.Exists(ctx, conversationKey(userID, conversationID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check conversation existence: %w", err)
	}
	return n != 0, nil
}

func (rs *RedisStore) ConversationSet(ctx context.Context, conversation *types.Conversation) error {
	raw, err := json.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	key := conversationKey(conversation.UserID, conversation.ID)
	if err := rs.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func (rs *RedisStore) ConversationList(ctx context.Context, userID uuid.UUID) ([]types.Conversation, error) {
	keys, err := rs.client.Keys(ctx, conversationPrefix(userID)+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation keys: %w", err)
	}
	conversations := make([]types.Conversation, 0, len(keys))
	for _, raw := range rs.mget(ctx, keys) {
		var conversation types.Conversation
		if err := json.Unmarshal([]byte(raw), &conversation); err != nil {
			rs.log.Warn("Dropping unparseable conversation", "error", err)
			continue
		}
		conversations = append(conversations, conversation)
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
	})
	return conversations, nil
}

func (rs *RedisStore) MessageSet(ctx context.Context, message *types.Message) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	var expiry time.Duration
	if message.Secret {
		expiry = SecretTTL
	}
	key := messageKey(message.ConversationID, message.ID)
	if err := rs.client.Set(ctx, key, raw, expiry).Err(); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (rs *RedisStore) MessageList(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error) {
	keys, err := rs.client.Keys(ctx, messagePrefix(conversationID)+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list message keys: %w", err)
	}
	messages := make([]types.Message, 0, len(keys))
	for _, raw := range rs.mget(ctx, keys) {
		var message types.Message
		if err := json.Unmarshal([]byte(raw), &message); err != nil {
			rs.log.Warn("Dropping unparseable message", "error", err)
			continue
		}
		messages = append(messages, message)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (rs *RedisStore) MessageGetIndex(ctx context.Context, indexes []types.IndexMessage) ([]types.Message, error) {
	keys := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		keys = append(keys, messageKey(idx.ConversationID, idx.ID))
	}
	messages := make([]types.Message, 0, len(keys))
	for _, raw := range rs.mget(ctx, keys) {
		var message types.Message
		if err := json.Unmarshal([]byte(raw), &message); err != nil {
			rs.log.Warn("Dropping unparseable indexed message", "error", err)
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (rs *RedisStore) UsageSet(ctx context.Context, usage *types.Usage) error {
	raw, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("failed to marshal usage: %w", err)
	}
	key := fmt.Sprintf("%s:%s", usageKey(usage.UserID), usage.ID)
	if err := rs.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

func (rs *RedisStore) Readiness(ctx context.Context) error {
	probe := uuid.NewString()
	if err := rs.client.Set(ctx, probe, "dummy", time.Minute).Err(); err != nil {
		return err
	}
	if err := rs.client.Get(ctx, probe).Err(); err != nil {
		return err
	}
	return rs.client.Del(ctx, probe).Err()
}

func (rs *RedisStore) mget(ctx context.Context, keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	raws, err := rs.client.MGet(ctx, keys...).Result()
	if err != nil {
		rs.log.Warn("MGET failed", "error", err)
		return nil
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
	return vals
}

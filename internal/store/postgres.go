package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/confide-ai/confide-backend/internal/cache"
	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/types"
)

// PostgresStore persists entities in Postgres with a cache-aside layer in
// front of list and single-conversation reads. List entries are deleted on
// write rather than updated in place.
type PostgresStore struct {
	db       *gorm.DB
	log      *logger.Logger
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewPostgresStore(db *gorm.DB, log *logger.Logger, c cache.Cache) *PostgresStore {
	return &PostgresStore{
		db:       db,
		log:      log.With("store", "PostgresStore"),
		cache:    c,
		cacheTTL: cache.DefaultTTL,
	}
}

func (ps *PostgresStore) UserGet(ctx context.Context, externalID string) (*types.User, error) {
	var user types.User
	err := ps.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (ps *PostgresStore) UserSet(ctx context.Context, user *types.User) error {
	if err := ps.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (ps *PostgresStore) ConversationGet(ctx context.Context, conversationID, userID uuid.UUID) (*types.Conversation, error) {
	key := conversationKey(userID, conversationID)
	if raw, ok, err := ps.cache.Get(ctx, key); err == nil && ok {
		var conversation types.Conversation
		if err := json.Unmarshal([]byte(raw), &conversation); err == nil {
			return &conversation, nil
		}
		ps.log.Warn("Dropping unparseable cached conversation", "key", key)
	}

	var conversation types.Conversation
	err := ps.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	ps.cacheSet(ctx, key, &conversation)
	return &conversation, nil
}

func (ps *PostgresStore) ConversationExists(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	// Deliberately uncached: a stale miss here would 404 a legitimate
	// append.
	var count int64
	err := ps.db.WithContext(ctx).Model(&types.Conversation{}).
		Where("id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check conversation existence: %w", err)
	}
	return count > 0, nil
}

func (ps *PostgresStore) ConversationSet(ctx context.Context, conversation *types.Conversation) error {
	if err := ps.db.WithContext(ctx).Save(conversation).Error; err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	ps.cacheDelete(ctx, conversationListKey(conversation.UserID))
	ps.cacheDelete(ctx, conversationKey(conversation.UserID, conversation.ID))
	return nil
}

func (ps *PostgresStore) ConversationList(ctx context.Context, userID uuid.UUID) ([]types.Conversation, error) {
	key := conversationListKey(userID)
	if raw, ok, err := ps.cache.Get(ctx, key); err == nil && ok {
		var conversations []types.Conversation
		if err := json.Unmarshal([]byte(raw), &conversations); err == nil {
			return conversations, nil
		}
		ps.log.Warn("Dropping unparseable cached conversation list", "key", key)
	}

	var conversations []types.Conversation
	err := ps.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	ps.cacheSet(ctx, key, conversations)
	return conversations, nil
}

func (ps *PostgresStore) MessageSet(ctx context.Context, message *types.Message) error {
	if message.Secret {
		expiresAt := time.Now().Add(SecretTTL)
		message.ExpiresAt = &expiresAt
	}
	if err := ps.db.WithContext(ctx).Save(message).Error; err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	ps.cacheDelete(ctx, messageListKey(message.ConversationID))
	return nil
}

func (ps *PostgresStore) MessageList(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error) {
	key := messageListKey(conversationID)
	if raw, ok, err := ps.cache.Get(ctx, key); err == nil && ok {
		var messages []types.Message
		if err := json.Unmarshal([]byte(raw), &messages); err == nil {
			return messages, nil
		}
		ps.log.Warn("Dropping unparseable cached message list", "key", key)
	}

	var messages []types.Message
	err := ps.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	ps.cacheSet(ctx, key, messages)
	return messages, nil
}

func (ps *PostgresStore) MessageGetIndex(ctx context.Context, indexes []types.IndexMessage) ([]types.Message, error) {
	messages := make([]types.Message, 0, len(indexes))
	for _, idx := range indexes {
		var message types.Message
		err := ps.db.WithContext(ctx).
			Where("id = ? AND conversation_id = ?", idx.ID, idx.ConversationID).
			Where("expires_at IS NULL OR expires_at > ?", time.Now()).
			First(&message).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				ps.log.Warn("Failed to rehydrate indexed message", "messageID", idx.ID, "error", err)
			}
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (ps *PostgresStore) UsageSet(ctx context.Context, usage *types.Usage) error {
	if err := ps.db.WithContext(ctx).Create(usage).Error; err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Readiness(ctx context.Context) error {
	sqlDB, err := ps.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Cache failures never surface: correctness must hold with the cache
// disabled entirely.

func (ps *PostgresStore) cacheSet(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		ps.log.Warn("Failed to marshal cache entry", "key", key, "error", err)
		return
	}
	if err := ps.cache.Set(ctx, key, string(raw), ps.cacheTTL); err != nil {
		ps.log.Warn("Failed to populate cache", "key", key, "error", err)
	}
}

func (ps *PostgresStore) cacheDelete(ctx context.Context, key string) {
	if err := ps.cache.Delete(ctx, key); err != nil {
		ps.log.Warn("Failed to invalidate cache", "key", key, "error", err)
	}
}

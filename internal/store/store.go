package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/confide-ai/confide-backend/internal/types"
)

// SecretTTL is how long a message posted with secret=true stays retrievable.
const SecretTTL = 24 * time.Hour

// Store is the durable persistence contract, uniform across backing engines.
//
// Conversation and message writes are not wrapped in a cross-entity
// transaction; callers must tolerate the window where a conversation exists
// before its first message lands, and treat an empty message list as valid.
//
// Lookups scoped by user return (nil, nil) for another user's records —
// absence, never "forbidden" — so existence cannot be probed across tenants.
type Store interface {
	// UserGet returns (nil, nil) when the user is unknown. A backend
	// failure returns an error: minting a duplicate user on a false
	// negative is worse than failing the request.
	UserGet(ctx context.Context, externalID string) (*types.User, error)
	UserSet(ctx context.Context, user *types.User) error

	ConversationGet(ctx context.Context, conversationID, userID uuid.UUID) (*types.Conversation, error)
	ConversationExists(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	// ConversationSet invalidates any cached conversation list for the
	// owning user.
	ConversationSet(ctx context.Context, conversation *types.Conversation) error
	// ConversationList returns the user's conversations, newest first.
	ConversationList(ctx context.Context, userID uuid.UUID) ([]types.Conversation, error)

	// MessageSet applies the secret TTL policy at write time and
	// invalidates any cached message list for the conversation.
	MessageSet(ctx context.Context, message *types.Message) error
	// MessageList returns the conversation's messages, oldest first.
	MessageList(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error)
	// MessageGetIndex rehydrates full messages from index payloads.
	// Missing or unparseable entries are dropped; partial results are fine
	// since this feeds suggestions, not conversation content.
	MessageGetIndex(ctx context.Context, indexes []types.IndexMessage) ([]types.Message, error)

	UsageSet(ctx context.Context, usage *types.Usage) error

	Readiness(ctx context.Context) error
}

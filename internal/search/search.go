package search

import (
	"context"

	"github.com/google/uuid"

	"github.com/confide-ai/confide-backend/internal/types"
)

// Search maintains a vector index over message content and answers
// user-scoped semantic queries. Indexing is asynchronous and best-effort: a
// message that fails to index stays reachable through its conversation, it
// is just absent from search.
type Search interface {
	// MessageIndex schedules background indexing of the message. It never
	// blocks the request path that produced the message.
	MessageIndex(message *types.Message)
	MessageSearch(ctx context.Context, query string, userID uuid.UUID, limit int) (*types.SearchResult, error)
	Readiness(ctx context.Context) error
}

// Scored is one nearest-neighbor hit before rehydration.
type Scored struct {
	Index types.IndexMessage
	Score float32
}

// VectorStore is the raw vector-database contract behind Search.
type VectorStore interface {
	Upsert(ctx context.Context, id uuid.UUID, vector []float32, payload types.IndexMessage) error
	// Query restricts matches to the given conversation IDs. Scoping by
	// ownership at query time (rather than baking user_id into payloads)
	// means future ACL changes only touch the durable store.
	Query(ctx context.Context, vector []float32, conversationIDs []uuid.UUID, limit uint64) ([]Scored, error)
	Count(ctx context.Context) (uint64, error)
	Readiness(ctx context.Context) error
}

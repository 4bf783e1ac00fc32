package search

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/confide-ai/confide-backend/internal/ai"
	"github.com/confide-ai/confide-backend/internal/cache"
	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/store"
	"github.com/confide-ai/confide-backend/internal/types"
)

const (
	// defaultLimit bounds a search that does not ask for a size.
	defaultLimit = 25
	// resultTTL keeps identical queries from re-embedding on every call.
	resultTTL = 10 * time.Minute
	// indexTimeout caps one background embed-and-upsert cycle.
	indexTimeout = 2 * time.Minute
)

// Engine wires an embedder and a vector store into the Search contract.
type Engine struct {
	log      *logger.Logger
	vectors  VectorStore
	store    store.Store
	cache    cache.Cache
	embedder ai.Embedder
}

func NewEngine(log *logger.Logger, vectors VectorStore, st store.Store, ch cache.Cache, embedder ai.Embedder) *Engine {
	return &Engine{
		log:      log.With("service", "SearchEngine"),
		vectors:  vectors,
		store:    st,
		cache:    ch,
		embedder: embedder,
	}
}

func (e *Engine) MessageIndex(message *types.Message) {
	if message == nil || message.Content == "" {
		return
	}
	index := types.IndexMessage{ID: message.ID, ConversationID: message.ConversationID}
	content := message.Content
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("Indexing job panicked", "message_id", index.ID, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		vector, err := e.embed(ctx, content, "")
		if err != nil {
			e.log.Warn("Failed to embed message, skipping indexing", "message_id", index.ID, "error", err)
			return
		}
		if err := e.vectors.Upsert(ctx, index.ID, vector, index); err != nil {
			e.log.Warn("Failed to index message", "message_id", index.ID, "error", err)
			return
		}
		e.log.Debug("Indexed message", "message_id", index.ID)
	}()
}

func (e *Engine) MessageSearch(ctx context.Context, query string, userID uuid.UUID, limit int) (*types.SearchResult, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	key := searchKey(userID, query, limit)
	if raw, ok, err := e.cache.Get(ctx, key); err != nil {
		e.log.Warn("Failed to read cached search result", "error", err)
	} else if ok {
		var result types.SearchResult
		if err := json.Unmarshal([]byte(raw), &result); err == nil {
			return &result, nil
		}
		e.log.Warn("Dropping unparseable cached search result", "key", key)
	}

	start := time.Now()
	vector, err := e.embed(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	conversations, err := e.store.ConversationList(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to scope search: %w", err)
	}
	conversationIDs := make([]uuid.UUID, 0, len(conversations))
	for _, conversation := range conversations {
		conversationIDs = append(conversationIDs, conversation.ID)
	}

	answers := []types.SearchAnswer{}
	if len(conversationIDs) > 0 {
		scored, err := e.vectors.Query(ctx, vector, conversationIDs, uint64(limit))
		if err != nil {
			return nil, fmt.Errorf("failed to query vectors: %w", err)
		}
		answers = e.rehydrate(ctx, scored)
	}

	total, err := e.vectors.Count(ctx)
	if err != nil {
		e.log.Warn("Failed to count indexed messages", "error", err)
	}

	result := &types.SearchResult{
		Query:   query,
		Answers: answers,
		Stats: types.SearchStats{
			Total:   total,
			Seconds: time.Since(start).Seconds(),
		},
	}

	if raw, err := json.Marshal(result); err == nil {
		if err := e.cache.Set(ctx, key, string(raw), resultTTL); err != nil {
			e.log.Warn("Failed to cache search result", "error", err)
		}
	}
	return result, nil
}

func (e *Engine) Readiness(ctx context.Context) error {
	return e.vectors.Readiness(ctx)
}

// rehydrate swaps index payloads for full messages from the durable store,
// preserving score order. Hits whose message has expired or vanished are
// dropped rather than failing the search.
func (e *Engine) rehydrate(ctx context.Context, scored []Scored) []types.SearchAnswer {
	indexes := make([]types.IndexMessage, 0, len(scored))
	for _, hit := range scored {
		indexes = append(indexes, hit.Index)
	}
	messages, err := e.store.MessageGetIndex(ctx, indexes)
	if err != nil {
		e.log.Warn("Failed to rehydrate search hits", "error", err)
		return []types.SearchAnswer{}
	}
	byID := make(map[uuid.UUID]types.Message, len(messages))
	for _, message := range messages {
		byID[message.ID] = message
	}
	answers := make([]types.SearchAnswer, 0, len(scored))
	for _, hit := range scored {
		message, ok := byID[hit.Index.ID]
		if !ok {
			continue
		}
		answers = append(answers, types.SearchAnswer{Data: message, Score: hit.Score})
	}
	return answers
}

func (e *Engine) embed(ctx context.Context, text, user string) ([]float32, error) {
	var vector []float32
	operation := func() error {
		var err error
		vector, err = e.embedder.Embed(ctx, text, user)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(500*time.Millisecond),
		backoff.WithMaxInterval(30*time.Second),
	), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return vector, nil
}

func searchKey(userID uuid.UUID, query string, limit int) string {
	return fmt.Sprintf("search:%s:%d:%x", userID, limit, sha256.Sum256([]byte(query)))
}

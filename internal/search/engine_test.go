package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/types"
)

type fakeVectors struct {
	mu       sync.Mutex
	points   map[uuid.UUID]types.IndexMessage
	hits     []Scored
	queries  int
	lastIDs  []uuid.UUID
	lastN    uint64
	upserted chan types.IndexMessage
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{
		points:   make(map[uuid.UUID]types.IndexMessage),
		upserted: make(chan types.IndexMessage, 16),
	}
}

func (fv *fakeVectors) Upsert(ctx context.Context, id uuid.UUID, vector []float32, payload types.IndexMessage) error {
	fv.mu.Lock()
	fv.points[id] = payload
	fv.mu.Unlock()
	fv.upserted <- payload
	return nil
}

func (fv *fakeVectors) Query(ctx context.Context, vector []float32, conversationIDs []uuid.UUID, limit uint64) ([]Scored, error) {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	fv.queries++
	fv.lastIDs = append([]uuid.UUID(nil), conversationIDs...)
	fv.lastN = limit
	return append([]Scored(nil), fv.hits...), nil
}

func (fv *fakeVectors) Count(ctx context.Context) (uint64, error) {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	return uint64(len(fv.points)), nil
}

func (fv *fakeVectors) Readiness(ctx context.Context) error { return nil }

func (fv *fakeVectors) queryCount() int {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	return fv.queries
}

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (ce *countingEmbedder) Embed(ctx context.Context, text, user string) ([]float32, error) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.calls++
	return []float32{0.1, 0.2, 0.3}, nil
}

func (ce *countingEmbedder) count() int {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return ce.calls
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string]string)} }

func (mc *mapCache) Get(ctx context.Context, key string) (string, bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	val, ok := mc.entries[key]
	return val, ok, nil
}

func (mc *mapCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries[key] = value
	return nil
}

func (mc *mapCache) MGet(ctx context.Context, keys []string) ([]string, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	var out []string
	for _, key := range keys {
		if val, ok := mc.entries[key]; ok {
			out = append(out, val)
		}
	}
	return out, nil
}

func (mc *mapCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.entries, key)
	return nil
}

func (mc *mapCache) Exists(ctx context.Context, key string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	_, ok := mc.entries[key]
	return ok, nil
}

func (mc *mapCache) Readiness(ctx context.Context) error { return nil }

// memStore implements just enough of the store contract for the engine:
// conversation ownership and index rehydration.
type memStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID][]types.Conversation
	messages      map[uuid.UUID]types.Message
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[uuid.UUID][]types.Conversation),
		messages:      make(map[uuid.UUID]types.Message),
	}
}

func (ms *memStore) UserGet(ctx context.Context, externalID string) (*types.User, error) {
	return nil, nil
}
func (ms *memStore) UserSet(ctx context.Context, user *types.User) error { return nil }
func (ms *memStore) ConversationGet(ctx context.Context, conversationID, userID uuid.UUID) (*types.Conversation, error) {
	return nil, nil
}
func (ms *memStore) ConversationExists(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return false, nil
}
func (ms *memStore) ConversationSet(ctx context.Context, conversation *types.Conversation) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.conversations[conversation.UserID] = append(ms.conversations[conversation.UserID], *conversation)
	return nil
}
func (ms *memStore) ConversationList(ctx context.Context, userID uuid.UUID) ([]types.Conversation, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]types.Conversation(nil), ms.conversations[userID]...), nil
}
func (ms *memStore) MessageSet(ctx context.Context, message *types.Message) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.messages[message.ID] = *message
	return nil
}
func (ms *memStore) MessageList(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error) {
	return nil, nil
}
func (ms *memStore) MessageGetIndex(ctx context.Context, indexes []types.IndexMessage) ([]types.Message, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var out []types.Message
	for _, idx := range indexes {
		if message, ok := ms.messages[idx.ID]; ok {
			out = append(out, message)
		}
	}
	return out, nil
}
func (ms *memStore) UsageSet(ctx context.Context, usage *types.Usage) error { return nil }
func (ms *memStore) Readiness(ctx context.Context) error                    { return nil }

func newTestEngine(t *testing.T) (*Engine, *fakeVectors, *countingEmbedder, *memStore) {
	t.Helper()
	vectors := newFakeVectors()
	embedder := &countingEmbedder{}
	st := newMemStore()
	engine := NewEngine(logger.NewNop(), vectors, st, newMapCache(), embedder)
	return engine, vectors, embedder, st
}

func TestSearchMemoizesIdenticalQueries(t *testing.T) {
	engine, vectors, embedder, st := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	if err := st.ConversationSet(ctx, &types.Conversation{ID: uuid.New(), UserID: userID}); err != nil {
		t.Fatal(err)
	}

	first, err := engine.MessageSearch(ctx, "what did I say", userID, 10)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.MessageSearch(ctx, "what did I say", userID, 10)
	if err != nil {
		t.Fatal(err)
	}

	if embedder.count() != 1 {
		t.Errorf("expected one embedding call for two identical searches, got %d", embedder.count())
	}
	if vectors.queryCount() != 1 {
		t.Errorf("expected one vector query, got %d", vectors.queryCount())
	}
	if first.Query != second.Query {
		t.Error("cached result should match")
	}
}

func TestSearchDifferentUsersDoNotShareCache(t *testing.T) {
	engine, _, embedder, st := newTestEngine(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	if err := st.ConversationSet(ctx, &types.Conversation{ID: uuid.New(), UserID: alice}); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.MessageSearch(ctx, "q", alice, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.MessageSearch(ctx, "q", bob, 10); err != nil {
		t.Fatal(err)
	}
	if embedder.count() != 2 {
		t.Errorf("expected per-user cache keys, got %d embedding calls", embedder.count())
	}
}

func TestSearchScopedToCallersConversations(t *testing.T) {
	engine, vectors, _, st := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	mine := uuid.New()
	if err := st.ConversationSet(ctx, &types.Conversation{ID: mine, UserID: userID}); err != nil {
		t.Fatal(err)
	}
	if err := st.ConversationSet(ctx, &types.Conversation{ID: uuid.New(), UserID: uuid.New()}); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.MessageSearch(ctx, "q", userID, 10); err != nil {
		t.Fatal(err)
	}
	if len(vectors.lastIDs) != 1 || vectors.lastIDs[0] != mine {
		t.Errorf("expected only the caller's conversation in the filter, got %v", vectors.lastIDs)
	}
}

func TestSearchWithoutConversationsSkipsVectorQuery(t *testing.T) {
	engine, vectors, _, _ := newTestEngine(t)

	result, err := engine.MessageSearch(context.Background(), "q", uuid.New(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if vectors.queryCount() != 0 {
		t.Error("no conversations means nothing to query")
	}
	if len(result.Answers) != 0 {
		t.Errorf("expected empty answers, got %d", len(result.Answers))
	}
}

func TestSearchRehydratesAndDropsVanishedMessages(t *testing.T) {
	engine, vectors, _, st := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	conversationID := uuid.New()
	if err := st.ConversationSet(ctx, &types.Conversation{ID: conversationID, UserID: userID}); err != nil {
		t.Fatal(err)
	}
	kept := types.Message{ID: uuid.New(), ConversationID: conversationID, Role: types.RoleUser, Content: "kept"}
	if err := st.MessageSet(ctx, &kept); err != nil {
		t.Fatal(err)
	}
	vectors.hits = []Scored{
		{Index: types.IndexMessage{ID: kept.ID, ConversationID: conversationID}, Score: 0.9},
		// Expired secret message: indexed once, gone from the store now.
		{Index: types.IndexMessage{ID: uuid.New(), ConversationID: conversationID}, Score: 0.8},
	}

	result, err := engine.MessageSearch(ctx, "q", userID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Answers) != 1 {
		t.Fatalf("expected the vanished hit dropped, got %d answers", len(result.Answers))
	}
	if result.Answers[0].Data.Content != "kept" || result.Answers[0].Score != 0.9 {
		t.Errorf("unexpected answer %+v", result.Answers[0])
	}
}

func TestSearchDefaultLimit(t *testing.T) {
	engine, vectors, _, st := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	if err := st.ConversationSet(ctx, &types.Conversation{ID: uuid.New(), UserID: userID}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.MessageSearch(ctx, "q", userID, 0); err != nil {
		t.Fatal(err)
	}
	if vectors.lastN != defaultLimit {
		t.Errorf("expected default limit %d, got %d", defaultLimit, vectors.lastN)
	}
}

func TestMessageIndexIsAsynchronous(t *testing.T) {
	engine, vectors, _, _ := newTestEngine(t)
	message := &types.Message{ID: uuid.New(), ConversationID: uuid.New(), Role: types.RoleUser, Content: "index me"}

	engine.MessageIndex(message)

	select {
	case payload := <-vectors.upserted:
		if payload.ID != message.ID || payload.ConversationID != message.ConversationID {
			t.Errorf("unexpected payload %+v", payload)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for background indexing")
	}
}

func TestMessageIndexSkipsEmptyContent(t *testing.T) {
	engine, vectors, _, _ := newTestEngine(t)
	engine.MessageIndex(&types.Message{ID: uuid.New(), ConversationID: uuid.New()})
	engine.MessageIndex(nil)

	select {
	case <-vectors.upserted:
		t.Fatal("empty messages must not be indexed")
	case <-time.After(100 * time.Millisecond):
	}
}

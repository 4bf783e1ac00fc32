package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/confide-ai/confide-backend/internal/ai"
	"github.com/confide-ai/confide-backend/internal/types"
)

// In-memory doubles for the store, stream, search and AI contracts. They are
// concurrency-safe because background jobs touch them from other goroutines.

type fakeStore struct {
	mu            sync.Mutex
	users         map[string]*types.User
	conversations map[uuid.UUID]*types.Conversation
	messages      map[uuid.UUID][]types.Message
	usages        []types.Usage

	userGetErr error
	userSetErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]*types.User),
		conversations: make(map[uuid.UUID]*types.Conversation),
		messages:      make(map[uuid.UUID][]types.Message),
	}
}

func (fs *fakeStore) UserGet(ctx context.Context, externalID string) (*types.User, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.userGetErr != nil {
		return nil, fs.userGetErr
	}
	if user, ok := fs.users[externalID]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, nil
}

func (fs *fakeStore) UserSet(ctx context.Context, user *types.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.userSetErr != nil {
		return fs.userSetErr
	}
	copied := *user
	fs.users[user.ExternalID] = &copied
	return nil
}

func (fs *fakeStore) ConversationGet(ctx context.Context, conversationID, userID uuid.UUID) (*types.Conversation, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	conversation, ok := fs.conversations[conversationID]
	if !ok || conversation.UserID != userID {
		return nil, nil
	}
	copied := *conversation
	return &copied, nil
}

func (fs *fakeStore) ConversationExists(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	conversation, err := fs.ConversationGet(ctx, conversationID, userID)
	return conversation != nil, err
}

func (fs *fakeStore) ConversationSet(ctx context.Context, conversation *types.Conversation) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	copied := *conversation
	fs.conversations[conversation.ID] = &copied
	return nil
}

func (fs *fakeStore) ConversationList(ctx context.Context, userID uuid.UUID) ([]types.Conversation, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []types.Conversation
	for _, conversation := range fs.conversations {
		if conversation.UserID == userID {
			out = append(out, *conversation)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (fs *fakeStore) MessageSet(ctx context.Context, message *types.Message) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	existing := fs.messages[message.ConversationID]
	for i := range existing {
		if existing[i].ID == message.ID {
			existing[i] = *message
			return nil
		}
	}
	fs.messages[message.ConversationID] = append(existing, *message)
	return nil
}

func (fs *fakeStore) MessageList(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]types.Message, len(fs.messages[conversationID]))
	copy(out, fs.messages[conversationID])
	return out, nil
}

func (fs *fakeStore) MessageGetIndex(ctx context.Context, indexes []types.IndexMessage) ([]types.Message, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []types.Message
	for _, idx := range indexes {
		for _, message := range fs.messages[idx.ConversationID] {
			if message.ID == idx.ID {
				out = append(out, message)
			}
		}
	}
	return out, nil
}

func (fs *fakeStore) UsageSet(ctx context.Context, usage *types.Usage) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.usages = append(fs.usages, *usage)
	return nil
}

func (fs *fakeStore) Readiness(ctx context.Context) error { return nil }

func (fs *fakeStore) conversationByID(id uuid.UUID) *types.Conversation {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if conversation, ok := fs.conversations[id]; ok {
		copied := *conversation
		return &copied
	}
	return nil
}

func (fs *fakeStore) messagesOf(id uuid.UUID) []types.Message {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]types.Message, len(fs.messages[id]))
	copy(out, fs.messages[id])
	return out
}

func (fs *fakeStore) usageCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.usages)
}

type fakeStream struct {
	mu     sync.Mutex
	pushes map[uuid.UUID][]string
	ended  map[uuid.UUID]bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		pushes: make(map[uuid.UUID][]string),
		ended:  make(map[uuid.UUID]bool),
	}
}

func (fs *fakeStream) Push(ctx context.Context, token uuid.UUID, content string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.pushes[token] = append(fs.pushes[token], content)
	return nil
}

func (fs *fakeStream) End(ctx context.Context, token uuid.UUID) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.ended[token] = true
	return nil
}

func (fs *fakeStream) Tail(ctx context.Context, token uuid.UUID, shouldStop func() bool) <-chan string {
	out := make(chan string)
	close(out)
	return out
}

func (fs *fakeStream) Clean(ctx context.Context, token uuid.UUID) error { return nil }

func (fs *fakeStream) Readiness(ctx context.Context) error { return nil }

func (fs *fakeStream) pushed(token uuid.UUID) []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, len(fs.pushes[token]))
	copy(out, fs.pushes[token])
	return out
}

func (fs *fakeStream) isEnded(token uuid.UUID) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.ended[token]
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []types.Message
}

func (fs *fakeSearch) MessageIndex(message *types.Message) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.indexed = append(fs.indexed, *message)
}

func (fs *fakeSearch) MessageSearch(ctx context.Context, query string, userID uuid.UUID, limit int) (*types.SearchResult, error) {
	return &types.SearchResult{Query: query, Answers: []types.SearchAnswer{}}, nil
}

func (fs *fakeSearch) Readiness(ctx context.Context) error { return nil }

func (fs *fakeSearch) indexedCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.indexed)
}

type fakeProvider struct {
	mu           sync.Mutex
	chunks       []ai.StreamChunk
	onceAnswer   string
	streamFails  int
	onceFails    int
	lastChat     []ai.ChatMessage
	maxTokens    int
	tokensPerMsg func(text string) int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		chunks:     []ai.StreamChunk{{Content: "Hi"}, {Content: "!"}},
		onceAnswer: "Small talk",
		maxTokens:  4096,
	}
}

func (fp *fakeProvider) CompletionStream(ctx context.Context, messages []ai.ChatMessage, user string) (<-chan ai.StreamChunk, error) {
	fp.mu.Lock()
	fp.lastChat = append([]ai.ChatMessage(nil), messages...)
	if fp.streamFails > 0 {
		fp.streamFails--
		fp.mu.Unlock()
		return nil, ai.ErrGaveUp
	}
	chunks := append([]ai.StreamChunk(nil), fp.chunks...)
	fp.mu.Unlock()

	out := make(chan ai.StreamChunk, len(chunks))
	for _, chunk := range chunks {
		out <- chunk
	}
	close(out)
	return out, nil
}

func (fp *fakeProvider) CompletionOnce(ctx context.Context, messages []ai.ChatMessage, user string) (string, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.onceFails > 0 {
		fp.onceFails--
		return "", ai.ErrGaveUp
	}
	return fp.onceAnswer, nil
}

func (fp *fakeProvider) Model() string { return "fake-model" }

func (fp *fakeProvider) MaxTokens() int { return fp.maxTokens }

func (fp *fakeProvider) TokensIn(text string) int {
	if fp.tokensPerMsg != nil {
		return fp.tokensPerMsg(text)
	}
	return len(text) / 4
}

func (fp *fakeProvider) chat() []ai.ChatMessage {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return append([]ai.ChatMessage(nil), fp.lastChat...)
}

type fakeModerator struct {
	flagged bool
	err     error
}

func (fm *fakeModerator) Moderated(ctx context.Context, text string) (bool, error) {
	return fm.flagged, fm.err
}

type fakeCatalog struct {
	prompts map[uuid.UUID]types.Prompt
}

func (fc *fakeCatalog) List() []types.Prompt {
	out := make([]types.Prompt, 0, len(fc.prompts))
	for _, prompt := range fc.prompts {
		out = append(out, prompt)
	}
	return out
}

func (fc *fakeCatalog) Get(id uuid.UUID) (*types.Prompt, error) {
	if prompt, ok := fc.prompts[id]; ok {
		return &prompt, nil
	}
	return nil, ErrPromptNotFound
}

type fakeVerifier struct {
	claims *Claims
	err    error
}

func (fv *fakeVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if fv.err != nil {
		return nil, fv.err
	}
	return fv.claims, nil
}

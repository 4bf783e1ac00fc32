package handlers

import (
	"context"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/confide-ai/confide-backend/internal/requestdata"
	"github.com/confide-ai/confide-backend/internal/services"
	"github.com/confide-ai/confide-backend/internal/stream"
	"github.com/confide-ai/confide-backend/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// asUser injects an authenticated identity the way the auth middleware
// would.
func asUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
			UserID:      userID,
			ExternalID:  "subject-1",
			DisplayName: "Sam",
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// closeNotifyingRecorder adds the http.CloseNotifier method gin's
// Context.Stream requires, which httptest.ResponseRecorder lacks.
type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (c *closeNotifyingRecorder) CloseNotify() <-chan bool { return c.closed }

func perform(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	router.ServeHTTP(&closeNotifyingRecorder{w, make(chan bool, 1)}, req)
	return w
}

type stubConversations struct {
	postResult *types.APIConversation
	postErr    error
	getResult  *types.APIConversation
	getErr     error
	listResult []types.Conversation
	listErr    error
	lastInput  services.PostMessageInput
}

func (sc *stubConversations) PostMessage(ctx context.Context, input services.PostMessageInput) (*types.APIConversation, error) {
	sc.lastInput = input
	return sc.postResult, sc.postErr
}

func (sc *stubConversations) Get(ctx context.Context, conversationID, userID uuid.UUID) (*types.APIConversation, error) {
	return sc.getResult, sc.getErr
}

func (sc *stubConversations) List(ctx context.Context, userID uuid.UUID) ([]types.Conversation, error) {
	return sc.listResult, sc.listErr
}

type stubSearch struct {
	result *types.SearchResult
	err    error
}

func (ss *stubSearch) MessageIndex(message *types.Message) {}

func (ss *stubSearch) MessageSearch(ctx context.Context, query string, userID uuid.UUID, limit int) (*types.SearchResult, error) {
	return ss.result, ss.err
}

func (ss *stubSearch) Readiness(ctx context.Context) error { return nil }

type stubStream struct {
	mu        sync.Mutex
	fragments []string
	cleaned   []uuid.UUID
}

func (ss *stubStream) Push(ctx context.Context, token uuid.UUID, content string) error { return nil }

func (ss *stubStream) End(ctx context.Context, token uuid.UUID) error { return nil }

func (ss *stubStream) Tail(ctx context.Context, token uuid.UUID, shouldStop func() bool) <-chan string {
	out := make(chan string, len(ss.fragments)+1)
	for _, fragment := range ss.fragments {
		out <- fragment
	}
	out <- stream.Stopword
	close(out)
	return out
}

func (ss *stubStream) Clean(ctx context.Context, token uuid.UUID) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.cleaned = append(ss.cleaned, token)
	return nil
}

func (ss *stubStream) Readiness(ctx context.Context) error { return nil }

func (ss *stubStream) cleanedCount() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.cleaned)
}

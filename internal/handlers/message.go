package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/requestdata"
	"github.com/confide-ai/confide-backend/internal/search"
	"github.com/confide-ai/confide-backend/internal/services"
	"github.com/confide-ai/confide-backend/internal/stream"
)

type MessageHandler struct {
	log           *logger.Logger
	conversations services.Conversations
	search        search.Search
	stream        stream.Stream
}

func NewMessageHandler(log *logger.Logger, conversations services.Conversations, se search.Search, sm stream.Stream) *MessageHandler {
	return &MessageHandler{
		log:           log.With("handler", "MessageHandler"),
		conversations: conversations,
		search:        se,
		stream:        sm,
	}
}

func (mh *MessageHandler) Post(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credentials"})
		return
	}
	content := c.Query("content")
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing content"})
		return
	}
	input := services.PostMessageInput{
		Content:  content,
		Language: c.Query("language"),
		Secret:   c.Query("secret") == "true",
	}
	if raw := c.Query("conversation_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
			return
		}
		input.ConversationID = &id
	}
	if raw := c.Query("prompt_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prompt id"})
			return
		}
		input.PromptID = &id
	}

	conversation, err := mh.conversations.PostMessage(c.Request.Context(), input)
	if err != nil {
		mh.postError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (mh *MessageHandler) postError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, services.ErrPromptNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt not found"})
	case errors.Is(err, services.ErrPromptConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt can only be set on a new conversation"})
	case errors.Is(err, services.ErrModerated):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message rejected by content policy"})
	case errors.Is(err, services.ErrMessageTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is too long"})
	case errors.Is(err, services.ErrConversationTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation is too long"})
	default:
		mh.log.Error("Failed to post message", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Stream replays the completion channel for a message token as server-sent
// events. Possession of the token is the authorization: it is one-time,
// unguessable and minted only on the caller's own message.
func (mh *MessageHandler) Stream(c *gin.Context) {
	token, err := uuid.Parse(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token"})
		return
	}
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	fragments := mh.stream.Tail(ctx, token, func() bool {
		return ctx.Err() != nil
	})
	c.Stream(func(w io.Writer) bool {
		fragment, ok := <-fragments
		if !ok {
			return false
		}
		c.SSEvent("message", fragment)
		return true
	})

	// The channel is single-use; drop its backing storage once the client
	// walks away, whether or not the stopword was reached.
	if err := mh.stream.Clean(context.WithoutCancel(ctx), token); err != nil {
		mh.log.Warn("Failed to clean stream", "token", token, "error", err)
	}
}

func (mh *MessageHandler) Search(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credentials"})
		return
	}
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}
	result, err := mh.search.MessageSearch(c.Request.Context(), query, rd.UserID, limit)
	if err != nil {
		mh.log.Error("Search failed", "user_id", rd.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, result)
}

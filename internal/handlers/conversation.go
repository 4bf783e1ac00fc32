package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/requestdata"
	"github.com/confide-ai/confide-backend/internal/services"
	"github.com/confide-ai/confide-backend/internal/types"
)

type ConversationHandler struct {
	log           *logger.Logger
	conversations services.Conversations
}

func NewConversationHandler(log *logger.Logger, conversations services.Conversations) *ConversationHandler {
	return &ConversationHandler{
		log:           log.With("handler", "ConversationHandler"),
		conversations: conversations,
	}
}

func (ch *ConversationHandler) Get(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credentials"})
		return
	}
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	conversation, err := ch.conversations.Get(c.Request.Context(), conversationID, rd.UserID)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		ch.log.Error("Failed to get conversation", "conversation_id", conversationID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (ch *ConversationHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credentials"})
		return
	}
	conversations, err := ch.conversations.List(c.Request.Context(), rd.UserID)
	if err != nil {
		ch.log.Error("Failed to list conversations", "user_id", rd.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, types.ConversationList{Conversations: conversations})
}

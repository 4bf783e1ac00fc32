package types

import (
	"time"

	"github.com/google/uuid"
)

// Conversation belongs to exactly one user; every message operation is
// scoped by UserID so another tenant's conversation reads as absent.
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Title     *string   `gorm:"column:title" json:"title"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	Prompt    *Prompt   `gorm:"type:jsonb;serializer:json" json:"prompt,omitempty"`
}

func (Conversation) TableName() string {
	return "conversation"
}

// APIConversation is the response shape: a conversation plus its ordered
// messages.
type APIConversation struct {
	Conversation
	Messages []Message `gorm:"-" json:"messages"`
}

type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
}

package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is immutable once written. Corrections append new messages.
//
// Token is minted only on the triggering user message and keys the streaming
// channel carrying the response to that message. ExpiresAt backs the secret
// TTL on engines without native key expiry.
type Message struct {
	ID             uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID                   `gorm:"type:uuid;index" json:"conversation_id"`
	Role           MessageRole                 `gorm:"column:role" json:"role"`
	Content        string                      `gorm:"column:content" json:"content"`
	CreatedAt      time.Time                   `gorm:"not null;default:now()" json:"created_at"`
	Secret         bool                        `gorm:"column:secret" json:"secret"`
	Token          *uuid.UUID                  `gorm:"type:uuid" json:"token,omitempty"`
	Actions        datatypes.JSONSlice[string] `gorm:"column:actions" json:"actions,omitempty"`
	Extra          datatypes.JSONMap           `gorm:"column:extra" json:"extra,omitempty"`
	ExpiresAt      *time.Time                  `gorm:"index" json:"-"`
}

func (Message) TableName() string {
	return "message"
}

// IndexMessage is the payload stored in the vector index. Content and
// timestamps are deliberately absent so the index holds no PII and needs no
// TTL of its own; the full message is always rehydrated from the store.
type IndexMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

package types

import (
	"time"

	"github.com/google/uuid"
)

// Usage is an append-only ledger row consumed by external billing. It is
// never read back by this service.
type Usage struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	ConversationID uuid.UUID `gorm:"type:uuid;index" json:"conversation_id"`
	AIModel        string    `gorm:"column:ai_model" json:"ai_model"`
	Tokens         int       `gorm:"column:tokens" json:"tokens"`
	PromptName     *string   `gorm:"column:prompt_name" json:"prompt_name,omitempty"`
	CreatedAt      time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Usage) TableName() string {
	return "usage"
}

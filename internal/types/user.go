package types

import (
	"time"

	"github.com/google/uuid"
)

// User maps an identity-provider subject to an internal id. Claims are
// refreshed opportunistically on authenticated requests; users are never
// deleted here.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID  string    `gorm:"uniqueIndex;not null;column:external_id" json:"external_id"`
	Email       string    `gorm:"column:email" json:"email,omitempty"`
	DisplayName string    `gorm:"column:display_name" json:"display_name,omitempty"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (User) TableName() string {
	return "user"
}

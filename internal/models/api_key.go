package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// An API key authenticates as its owner; admission keys on the owner's id
type APIKey struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	KeyHash    string     `gorm:"uniqueIndex;not null" json:"-"`
	Prefix     string     `gorm:"size:16" json:"prefix"` // first characters of the plain key, for display
	Name       string     `gorm:"not null" json:"name"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func (a *APIKey) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (APIKey) TableName() string {
	return "api_keys"
}

// Revoked keys stay in the table with IsActive false
func (a *APIKey) Usable() bool {
	return a.IsActive
}

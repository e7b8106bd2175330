package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationKind string

const (
	NotificationRequestLimitExceeded NotificationKind = "request_limit_exceeded"
	NotificationDailyLimitReset      NotificationKind = "daily_limit_reset"
	NotificationLimitUpdated         NotificationKind = "limit_updated"
	NotificationSubscriptionExpired  NotificationKind = "subscription_expired"
)

func (k NotificationKind) Title() string {
	switch k {
	case NotificationRequestLimitExceeded:
		return "Daily Request Limit Exceeded"
	case NotificationDailyLimitReset:
		return "Daily Request Limit Reset"
	case NotificationLimitUpdated:
		return "Request Limit Updated"
	case NotificationSubscriptionExpired:
		return "Subscription Expired"
	default:
		return "Notification"
	}
}

type Notification struct {
	ID        uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind      NotificationKind  `gorm:"size:40;not null" json:"kind"`
	Title     string            `gorm:"not null" json:"title"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb" json:"payload,omitempty"`
	IsRead    bool              `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

func (Notification) TableName() string {
	return "notifications"
}

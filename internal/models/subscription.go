package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionTrial     SubscriptionStatus = "trial"
)

// Admin adjustments stored alongside the subscription
type SubscriptionMetadata struct {
	RequestLimit *int `json:"requestLimit,omitempty"`
}

type Subscription struct {
	ID                uuid.UUID                                `gorm:"type:uuid;primary_key" json:"id"`
	UserID            uuid.UUID                                `gorm:"type:uuid;not null;index" json:"user_id"`
	PlanID            uuid.UUID                                `gorm:"type:uuid;not null" json:"plan_id"`
	Plan              *Plan                                    `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Tier              Tier                                     `gorm:"size:16;not null;default:'base'" json:"tier"`
	Status            SubscriptionStatus                       `gorm:"size:16;not null;default:'active';index" json:"status"`
	StartDate         time.Time                                `json:"start_date"`
	EndDate           time.Time                                `gorm:"index" json:"end_date"`
	Metadata          datatypes.JSONType[SubscriptionMetadata] `gorm:"type:jsonb" json:"metadata"`
	DailyRequestCount int                                      `gorm:"not null;default:0" json:"daily_request_count"`
	LastRequestReset  time.Time                                `json:"last_request_reset"`
	CreatedAt         time.Time                                `json:"created_at"`
	UpdatedAt         time.Time                                `json:"updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status == SubscriptionActive && s.EndDate.After(now)
}

// Daily ceiling: the admin override when present, otherwise the plan's limit
func (s *Subscription) RequestLimit() int {
	if override := s.Metadata.Data().RequestLimit; override != nil {
		return *override
	}
	if s.Plan != nil {
		return s.Plan.RequestLimit
	}
	return 0
}

func (s *Subscription) SetRequestLimit(limit int) {
	meta := s.Metadata.Data()
	meta.RequestLimit = &limit
	s.Metadata = datatypes.NewJSONType(meta)
}

// Zeroes the daily counter when now falls on a different calendar day than
// the last reset, in loc. Reports whether the quota fields changed.
func (s *Subscription) ResetIfNewDay(now time.Time, loc *time.Location) bool {
	if !s.LastRequestReset.IsZero() && SameDay(s.LastRequestReset, now, loc) {
		return false
	}
	s.ResetDailyRequestCount(now)
	return true
}

func (s *Subscription) ResetDailyRequestCount(now time.Time) {
	s.DailyRequestCount = 0
	s.LastRequestReset = now
}

// Checks the ceiling and takes one request from today's quota.
// A denied call leaves the counter untouched.
func (s *Subscription) TryIncrement() bool {
	if s.DailyRequestCount >= s.RequestLimit() {
		return false
	}
	s.DailyRequestCount++
	return true
}

func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Start of the next calendar day in loc
func NextDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

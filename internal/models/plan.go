package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Plan struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primary_key" json:"id"`
	Name         string                      `gorm:"uniqueIndex;not null" json:"name"`
	Price        float64                     `gorm:"type:decimal(10,2)" json:"price"`
	Tier         Tier                        `gorm:"size:16;not null;default:'base'" json:"tier"`
	RequestLimit int                         `gorm:"not null" json:"request_limit"` // daily
	Features     datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"features"`
	IsActive     bool                        `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

func (p *Plan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if !p.Tier.Valid() {
		p.Tier = TierBase
	}
	return nil
}

func (Plan) TableName() string {
	return "plans"
}

func (p *Plan) HasFeature(feature string) bool {
	if feature == "" {
		return true
	}
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Seeded on first start when the plans table is empty
func DefaultPlans() []Plan {
	return []Plan{
		{Name: "Basic", Price: 5, Tier: TierBase, RequestLimit: 500, Features: []string{"basic"}, IsActive: true},
		{Name: "Premium", Price: 15, Tier: TierMid, RequestLimit: 1500, Features: []string{"basic", "premium"}, IsActive: true},
		{Name: "Business", Price: 25, Tier: TierTop, RequestLimit: 10000, Features: []string{"basic", "premium", "business"}, IsActive: true},
	}
}

package ratelimit

import "github.com/aman-churiwal/quota-gateway/internal/models"

// Requests allowed per window for each tier
type Tiers map[models.Tier]int

func NewTiers(base, mid, top int) Tiers {
	return Tiers{
		models.TierBase: base,
		models.TierMid:  mid,
		models.TierTop:  top,
	}
}

// Unknown tiers get the base limit
func (t Tiers) Limit(tier models.Tier) int {
	if limit, ok := t[tier]; ok {
		return limit
	}
	return t[models.TierBase]
}

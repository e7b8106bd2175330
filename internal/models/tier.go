package models

import "strings"

// Tier is a rate limit class. The set is closed; plans pick one when created
// and subscriptions copy it, so nothing downstream matches on plan names.
type Tier string

const (
	TierBase Tier = "base"
	TierMid  Tier = "mid"
	TierTop  Tier = "top"
)

var Tiers = []Tier{TierBase, TierMid, TierTop}

func (t Tier) Valid() bool {
	switch t {
	case TierBase, TierMid, TierTop:
		return true
	default:
		return false
	}
}

// Normalizes user input, falling back to the base tier
func ParseTier(value string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(value)))
	if !t.Valid() {
		return TierBase
	}
	return t
}

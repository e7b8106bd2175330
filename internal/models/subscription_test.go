package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubscription(limit, count int) *Subscription {
	return &Subscription{
		Plan:              &Plan{RequestLimit: limit},
		Status:            SubscriptionActive,
		DailyRequestCount: count,
		LastRequestReset:  time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestSubscription_TryIncrement(t *testing.T) {
	sub := newSubscription(5, 5)
	assert.False(t, sub.TryIncrement())
	assert.Equal(t, 5, sub.DailyRequestCount)

	sub = newSubscription(5, 4)
	assert.True(t, sub.TryIncrement())
	assert.Equal(t, 5, sub.DailyRequestCount)
}

func TestSubscription_RequestLimitOverride(t *testing.T) {
	sub := newSubscription(500, 0)
	assert.Equal(t, 500, sub.RequestLimit())

	sub.SetRequestLimit(42)
	assert.Equal(t, 42, sub.RequestLimit())

	sub.Plan = nil
	assert.Equal(t, 42, sub.RequestLimit())
}

func TestSubscription_RequestLimitWithoutPlan(t *testing.T) {
	sub := &Subscription{}
	assert.Equal(t, 0, sub.RequestLimit())
	assert.False(t, sub.TryIncrement(), "no plan means no quota")
}

func TestSubscription_ResetIfNewDay(t *testing.T) {
	sub := newSubscription(5, 5)

	sameDay := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	assert.False(t, sub.ResetIfNewDay(sameDay, time.UTC))
	assert.Equal(t, 5, sub.DailyRequestCount)

	nextDay := time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC)
	assert.True(t, sub.ResetIfNewDay(nextDay, time.UTC))
	assert.Equal(t, 0, sub.DailyRequestCount)
	assert.Equal(t, nextDay, sub.LastRequestReset)
}

func TestSubscription_ResetIfNewDay_ZeroTimestamp(t *testing.T) {
	sub := newSubscription(5, 3)
	sub.LastRequestReset = time.Time{}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.True(t, sub.ResetIfNewDay(now, time.UTC))
	assert.Equal(t, 0, sub.DailyRequestCount)
}

func TestSameDay_UsesLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 14:00 and 16:00 UTC are the same UTC day but straddle midnight in Tokyo (UTC+9)
	a := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(a, b, time.UTC))
	assert.False(t, SameDay(a, b, tokyo))
}

func TestNextDay(t *testing.T) {
	now := time.Date(2026, 12, 31, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), NextDay(now, time.UTC))
}

func TestPlan_HasFeature(t *testing.T) {
	plan := Plan{Features: []string{"basic", "premium"}}
	assert.True(t, plan.HasFeature("premium"))
	assert.False(t, plan.HasFeature("business"))
	assert.True(t, plan.HasFeature(""))
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierTop, ParseTier(" TOP "))
	assert.Equal(t, TierBase, ParseTier("premium"))
}

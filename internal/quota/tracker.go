package quota

import (
	"context"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/metrics"
	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SubscriptionStore gives serialized access to a subscription's quota fields
type SubscriptionStore interface {
	WithLockedSubscription(ctx context.Context, id uuid.UUID, fn func(sub *models.Subscription) error) error
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

type Notifier interface {
	Notify(userID uuid.UUID, kind models.NotificationKind, payload map[string]any)
}

// Tracker counts metered requests against a subscription's daily limit
type Tracker struct {
	store    SubscriptionStore
	notifier Notifier
	location *time.Location
	now      func() time.Time
}

func NewTracker(store SubscriptionStore, notifier Notifier, location *time.Location) *Tracker {
	if location == nil {
		location = time.UTC
	}
	return &Tracker{
		store:    store,
		notifier: notifier,
		location: location,
		now:      time.Now,
	}
}

// Takes one request from the subscription's daily quota.
//
// The counter is reset first when the last reset happened on an earlier
// calendar day. A denied request leaves the counter unchanged and sends a
// request_limit_exceeded notification to the owner. sub is updated with the
// committed quota fields.
func (t *Tracker) TryConsume(ctx context.Context, sub *models.Subscription) (bool, error) {
	var (
		allowed bool
		locked  models.Subscription
	)

	err := t.store.WithLockedSubscription(ctx, sub.ID, func(s *models.Subscription) error {
		s.ResetIfNewDay(t.now(), t.location)
		allowed = s.TryIncrement()
		locked = *s
		return nil
	})
	if err != nil {
		return false, err
	}

	sub.DailyRequestCount = locked.DailyRequestCount
	sub.LastRequestReset = locked.LastRequestReset

	limit := locked.RequestLimit()
	if allowed && locked.DailyRequestCount > limit {
		metrics.QuotaRaceDetected.Inc()
		log.WithError(ErrQuotaRaceDetected).WithFields(log.Fields{
			"subscription_id": locked.ID,
			"count":           locked.DailyRequestCount,
			"limit":           limit,
		}).Error("quota invariant violated")
	}

	if !allowed {
		t.notifier.Notify(locked.UserID, models.NotificationRequestLimitExceeded, map[string]any{
			"currentCount": locked.DailyRequestCount,
			"limit":        limit,
		})
	}

	return allowed, nil
}

type Usage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resetsAt"`
}

// Reports today's usage without consuming anything
func (t *Tracker) Usage(sub *models.Subscription) Usage {
	now := t.now()

	used := sub.DailyRequestCount
	if sub.LastRequestReset.IsZero() || !models.SameDay(sub.LastRequestReset, now, t.location) {
		used = 0
	}

	limit := sub.RequestLimit()
	return Usage{
		Used:      used,
		Limit:     limit,
		Remaining: max(limit-used, 0),
		ResetsAt:  models.NextDay(now, t.location),
	}
}

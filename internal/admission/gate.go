package admission

import (
	"context"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/metrics"
	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/ratelimit"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type RateChecker interface {
	CheckRate(ctx context.Context, key string, tier models.Tier) ratelimit.Decision
}

type QuotaConsumer interface {
	TryConsume(ctx context.Context, sub *models.Subscription) (bool, error)
}

type SubscriptionFinder interface {
	FindActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Subscription, error)
}

// Gate combines the rate limiter and the daily quota into one decision.
// The rate limit is checked first and fails open; the quota fails closed.
type Gate struct {
	limiter       RateChecker
	quota         QuotaConsumer
	subscriptions SubscriptionFinder
	now           func() time.Time
}

func NewGate(limiter RateChecker, quota QuotaConsumer, subscriptions SubscriptionFinder) *Gate {
	return &Gate{
		limiter:       limiter,
		quota:         quota,
		subscriptions: subscriptions,
		now:           time.Now,
	}
}

func (g *Gate) Admit(ctx context.Context, req Request) Result {
	result := Result{Reason: ReasonNone, Tier: models.TierBase}

	var lookupErr error
	if req.UserID != uuid.Nil {
		result.Subscription, lookupErr = g.subscriptions.FindActiveByUser(ctx, req.UserID, g.now())
		if lookupErr != nil {
			log.WithError(lookupErr).WithField("user_id", req.UserID).Warn("subscription lookup failed")
		} else if result.Subscription != nil {
			result.Tier = models.ParseTier(string(result.Subscription.Tier))
		}
	}

	result.Rate = g.limiter.CheckRate(ctx, req.CallerKey(), result.Tier)
	if !result.Rate.Allowed {
		return g.deny(result, ReasonRateLimited, result.Rate.RetryAfterSeconds())
	}

	if !req.Metered {
		return g.admit(result)
	}

	if lookupErr != nil || result.Subscription == nil {
		return g.deny(result, ReasonQuotaExceeded, 0)
	}

	ok, err := g.quota.TryConsume(ctx, result.Subscription)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id":         req.UserID,
			"subscription_id": result.Subscription.ID,
		}).Error("quota check failed")
		return g.deny(result, ReasonQuotaExceeded, 0)
	}
	if !ok {
		return g.deny(result, ReasonQuotaExceeded, 0)
	}

	return g.admit(result)
}

func (g *Gate) admit(result Result) Result {
	result.Allowed = true
	metrics.AdmissionDecisions.WithLabelValues(result.outcome(), string(result.Tier)).Inc()
	return result
}

func (g *Gate) deny(result Result, reason Reason, retryAfter int) Result {
	result.Allowed = false
	result.Reason = reason
	result.RetryAfterSeconds = retryAfter
	metrics.AdmissionDecisions.WithLabelValues(result.outcome(), string(result.Tier)).Inc()
	return result
}

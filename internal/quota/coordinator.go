package quota

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/metrics"
	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Coordinator zeroes the daily counters of every active subscription
type Coordinator struct {
	store       SubscriptionStore
	notifier    Notifier
	concurrency int
	now         func() time.Time
}

func NewCoordinator(store SubscriptionStore, notifier Notifier, concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Coordinator{
		store:       store,
		notifier:    notifier,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Resets every active subscription and notifies its owner.
// A failure on one subscription does not stop the others; the first error
// is returned along with the number of subscriptions that were reset.
func (c *Coordinator) ResetAllActiveQuotas(ctx context.Context) (int, error) {
	ids, err := c.store.ListActiveIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active subscriptions: %w", err)
	}

	var (
		reset atomic.Int64
		group errgroup.Group
	)
	group.SetLimit(c.concurrency)

	for _, id := range ids {
		id := id
		group.Go(func() error {
			if err := c.resetOne(ctx, id); err != nil {
				if errors.Is(err, ErrSubscriptionNotFound) {
					return nil
				}
				metrics.QuotaResets.WithLabelValues("failed").Inc()
				log.WithError(err).WithField("subscription_id", id).Error("failed to reset daily quota")
				return fmt.Errorf("reset subscription %s: %w", id, err)
			}
			metrics.QuotaResets.WithLabelValues("reset").Inc()
			reset.Add(1)
			return nil
		})
	}

	err = group.Wait()

	log.WithFields(log.Fields{
		"active": len(ids),
		"reset":  reset.Load(),
	}).Info("daily quota reset finished")

	return int(reset.Load()), err
}

func (c *Coordinator) resetOne(ctx context.Context, id uuid.UUID) error {
	var (
		userID uuid.UUID
		limit  int
	)

	err := c.store.WithLockedSubscription(ctx, id, func(sub *models.Subscription) error {
		sub.ResetDailyRequestCount(c.now())
		userID = sub.UserID
		limit = sub.RequestLimit()
		return nil
	})
	if err != nil {
		return err
	}

	c.notifier.Notify(userID, models.NotificationDailyLimitReset, map[string]any{
		"limit": limit,
	})
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/metrics"
	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/repository"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const subscriptionTerm = 30 * 24 * time.Hour

type Notifier interface {
	Notify(userID uuid.UUID, kind models.NotificationKind, payload map[string]any)
}

type SubscriptionService struct {
	subscriptions *repository.SubscriptionRepository
	plans         *repository.PlanRepository
	notifier      Notifier
	now           func() time.Time
}

func NewSubscriptionService(subscriptions *repository.SubscriptionRepository, plans *repository.PlanRepository, notifier Notifier) *SubscriptionService {
	return &SubscriptionService{
		subscriptions: subscriptions,
		plans:         plans,
		notifier:      notifier,
		now:           time.Now,
	}
}

// Starts a 30 day subscription to planID. The plan's tier is copied onto the
// subscription so rate limiting never has to look at plan names.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID, planID uuid.UUID) (*models.Subscription, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.IsActive {
		return nil, ErrPlanNotFound
	}

	now := s.now().UTC()

	current, err := s.subscriptions.FindActiveByUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, ErrAlreadySubscribed
	}

	sub := &models.Subscription{
		UserID:           userID,
		PlanID:           plan.ID,
		Tier:             plan.Tier,
		Status:           models.SubscriptionActive,
		StartDate:        now,
		EndDate:          now.Add(subscriptionTerm),
		LastRequestReset: now,
	}
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	sub.Plan = plan

	log.WithFields(log.Fields{
		"user_id": userID,
		"plan":    plan.Name,
		"tier":    plan.Tier,
	}).Info("subscription created")

	return sub, nil
}

// Returns the user's active subscription, or nil
func (s *SubscriptionService) Current(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return s.subscriptions.FindActiveByUser(ctx, userID, s.now())
}

func (s *SubscriptionService) History(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	return s.subscriptions.ListByUser(ctx, userID)
}

func (s *SubscriptionService) Cancel(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNoActiveSubscription
	}

	if err := s.subscriptions.UpdateStatus(ctx, sub.ID, models.SubscriptionCancelled); err != nil {
		return nil, err
	}
	sub.Status = models.SubscriptionCancelled

	return sub, nil
}

// Admin override of a subscription's daily request limit
func (s *SubscriptionService) SetRequestLimit(ctx context.Context, id uuid.UUID, limit int) (*models.Subscription, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	sub, err := s.subscriptions.UpdateRequestLimit(ctx, id, limit)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(sub.UserID, models.NotificationLimitUpdated, map[string]any{
		"limit": limit,
	})

	return sub, nil
}

func (s *SubscriptionService) Expiring(ctx context.Context, within time.Duration) ([]models.Subscription, error) {
	return s.subscriptions.FindExpiring(ctx, s.now(), within)
}

// Moves subscriptions past their end date to expired and tells their owners
func (s *SubscriptionService) ExpireDue(ctx context.Context) (int, error) {
	expired, err := s.subscriptions.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	for _, sub := range expired {
		metrics.SubscriptionsExpired.Inc()
		s.notifier.Notify(sub.UserID, models.NotificationSubscriptionExpired, map[string]any{
			"subscriptionId": sub.ID.String(),
			"endDate":        sub.EndDate,
		})
	}

	return len(expired), nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrSubscriptionNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrNoActiveSubscription)
}

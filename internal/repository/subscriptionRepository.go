package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository struct {
	db *storage.Postgres
}

func NewSubscriptionRepository(db *storage.Postgres) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.DB.WithContext(ctx).Create(sub).Error
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.DB.WithContext(ctx).
		Preload("Plan").
		Where("id = ?", id).
		First(&sub).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &sub, err
}

// The user's current subscription: active and not past its end date.
// Returns nil when the user has none.
func (r *SubscriptionRepository) FindActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.DB.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ? AND status = ? AND end_date > ?", userID, models.SubscriptionActive, now.UTC()).
		Order("end_date DESC").
		First(&sub).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &sub, err
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.DB.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error

	return subs, err
}

func (r *SubscriptionRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.DB.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("status = ?", models.SubscriptionActive).
		Order("id").
		Pluck("id", &ids).Error

	return ids, err
}

// Loads the subscription with its row locked (SELECT ... FOR UPDATE) and runs
// fn inside the same transaction. Quota fields changed by fn are written back
// before commit, so concurrent callers on one subscription are serialized.
func (r *SubscriptionRepository) WithLockedSubscription(ctx context.Context, id uuid.UUID, fn func(sub *models.Subscription) error) error {
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		var sub models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubscriptionNotFound
		}
		if err != nil {
			return err
		}

		// The plan row is read without a lock
		var plan models.Plan
		err = tx.Where("id = ?", sub.PlanID).First(&plan).Error
		if err == nil {
			sub.Plan = &plan
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		count, lastReset := sub.DailyRequestCount, sub.LastRequestReset

		if err := fn(&sub); err != nil {
			return err
		}

		if sub.DailyRequestCount == count && sub.LastRequestReset.Equal(lastReset) {
			return nil
		}

		return tx.Model(&models.Subscription{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"daily_request_count": sub.DailyRequestCount,
				"last_request_reset":  sub.LastRequestReset,
			}).Error
	})
}

// Sets an admin override for the daily request limit
func (r *SubscriptionRepository) UpdateRequestLimit(ctx context.Context, id uuid.UUID, limit int) (*models.Subscription, error) {
	sub, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}

	sub.SetRequestLimit(limit)
	err = r.db.DB.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Update("metadata", sub.Metadata).Error

	return sub, err
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus) error {
	result := r.db.DB.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Update("status", status)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Active subscriptions whose end date falls within the next window
func (r *SubscriptionRepository) FindExpiring(ctx context.Context, now time.Time, within time.Duration) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.DB.WithContext(ctx).
		Preload("Plan").
		Where("status = ? AND end_date > ? AND end_date <= ?", models.SubscriptionActive, now.UTC(), now.Add(within).UTC()).
		Order("end_date ASC").
		Find(&subs).Error

	return subs, err
}

// Marks active subscriptions past their end date as expired and returns them
func (r *SubscriptionRepository) ExpireDue(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	var expired []models.Subscription

	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ? AND end_date <= ?", models.SubscriptionActive, now.UTC()).
			Find(&expired).Error
		if err != nil || len(expired) == 0 {
			return err
		}

		ids := make([]uuid.UUID, 0, len(expired))
		for i := range expired {
			ids = append(ids, expired[i].ID)
			expired[i].Status = models.SubscriptionExpired
		}

		return tx.Model(&models.Subscription{}).
			Where("id IN ?", ids).
			Update("status", models.SubscriptionExpired).Error
	})

	return expired, err
}

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *storage.Postgres {
	t.Helper()

	db, err := storage.Open(sqlite.Open(filepath.Join(t.TempDir(), "gateway.db")), logger.Silent)
	require.NoError(t, err)

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func seedSubscription(t *testing.T, db *storage.Postgres, limit int, end time.Time) (*models.Plan, *models.Subscription) {
	t.Helper()
	ctx := context.Background()

	plan := &models.Plan{Name: "Plan " + uuid.NewString(), Tier: models.TierMid, RequestLimit: limit, IsActive: true}
	require.NoError(t, NewPlanRepository(db).Create(ctx, plan))

	sub := &models.Subscription{
		UserID:           uuid.New(),
		PlanID:           plan.ID,
		Tier:             plan.Tier,
		Status:           models.SubscriptionActive,
		StartDate:        end.Add(-30 * 24 * time.Hour),
		EndDate:          end,
		LastRequestReset: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, NewSubscriptionRepository(db).Create(ctx, sub))

	return plan, sub
}

func TestSubscriptionRepository_FindActiveByUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	plan, sub := seedSubscription(t, db, 5, now.Add(24*time.Hour))

	found, err := repo.FindActiveByUser(ctx, sub.UserID, now)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, sub.ID, found.ID)
	require.NotNil(t, found.Plan)
	assert.Equal(t, plan.ID, found.Plan.ID)
	assert.Equal(t, 5, found.RequestLimit())

	found, err = repo.FindActiveByUser(ctx, sub.UserID, now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, found, "subscriptions past their end date are not active")

	found, err = repo.FindActiveByUser(ctx, uuid.New(), now)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSubscriptionRepository_WithLockedSubscriptionPersists(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	_, sub := seedSubscription(t, db, 5, time.Now().Add(time.Hour))

	for i := 0; i < 3; i++ {
		err := repo.WithLockedSubscription(ctx, sub.ID, func(locked *models.Subscription) error {
			require.NotNil(t, locked.Plan)
			assert.True(t, locked.TryIncrement())
			return nil
		})
		require.NoError(t, err)
	}

	stored, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.DailyRequestCount)
}

func TestSubscriptionRepository_WithLockedSubscriptionRollsBack(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	_, sub := seedSubscription(t, db, 5, time.Now().Add(time.Hour))

	err := repo.WithLockedSubscription(ctx, sub.ID, func(locked *models.Subscription) error {
		locked.TryIncrement()
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	stored, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.DailyRequestCount)

	err = repo.WithLockedSubscription(ctx, uuid.New(), func(*models.Subscription) error { return nil })
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestSubscriptionRepository_UpdateRequestLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	_, sub := seedSubscription(t, db, 5, time.Now().Add(time.Hour))

	updated, err := repo.UpdateRequestLimit(ctx, sub.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, updated.RequestLimit())

	stored, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, stored.RequestLimit())

	_, err = repo.UpdateRequestLimit(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestSubscriptionRepository_ExpireDue(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, due := seedSubscription(t, db, 5, now.Add(-time.Minute))
	_, current := seedSubscription(t, db, 5, now.Add(2*time.Hour))

	expiring, err := repo.FindExpiring(ctx, now, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, current.ID, expiring[0].ID)

	expired, err := repo.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, due.ID, expired[0].ID)

	ids, err := repo.ListActiveIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{current.ID}, ids)

	expired, err = repo.ExpireDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestPlanRepository_SeedDefaults(t *testing.T) {
	db := newTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	created, err := repo.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	created, err = repo.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)

	plans, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, "Basic", plans[0].Name)
	assert.True(t, plans[2].HasFeature("business"))
}

func TestNotificationRepository_Ownership(t *testing.T) {
	db := newTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	owner, other := uuid.New(), uuid.New()
	batch := []*models.Notification{
		{UserID: owner, Kind: models.NotificationRequestLimitExceeded, Title: "a"},
		{UserID: owner, Kind: models.NotificationDailyLimitReset, Title: "b"},
	}
	require.NoError(t, repo.CreateBatch(ctx, batch))

	unread, err := repo.CountUnread(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	ok, err := repo.MarkRead(ctx, other, batch[0].ID)
	require.NoError(t, err)
	assert.False(t, ok, "other users cannot mark a notification")

	ok, err = repo.MarkRead(ctx, owner, batch[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := repo.ListByUser(ctx, owner, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, batch[1].ID, list[0].ID)

	marked, err := repo.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
}

func TestAPIKeyRepository_Revoke(t *testing.T) {
	db := newTestDB(t)
	repo := NewAPIKeyRepository(db)
	ctx := context.Background()

	owner := uuid.New()
	key := &models.APIKey{UserID: owner, KeyHash: "hash", Name: "ci", IsActive: true}
	require.NoError(t, repo.Create(ctx, key))

	found, err := repo.FindByHash(ctx, "hash")
	require.NoError(t, err)
	require.NotNil(t, found)

	revoked, err := repo.Revoke(ctx, uuid.New(), key.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = repo.Revoke(ctx, owner, key.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	found, err = repo.FindByHash(ctx, "hash")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRequestLogRepository_Aggregates(t *testing.T) {
	db := newTestDB(t)
	repo := NewRequestLogRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	userID := uuid.New()
	entry := func(age time.Duration, status int, reason string, ms int) *models.RequestLog {
		return &models.RequestLog{
			Timestamp:       now.Add(-age),
			UserID:          &userID,
			Method:          "GET",
			Path:            "/api/weather/forecast",
			StatusCode:      status,
			ResponseTimeMs:  ms,
			Tier:            "base",
			AdmissionReason: reason,
		}
	}

	require.NoError(t, repo.CreateBatch(ctx, []*models.RequestLog{
		entry(time.Minute, 200, "none", 10),
		entry(2*time.Minute, 429, "rate_limited", 1),
		entry(3*time.Minute, 429, "quota_exceeded", 1),
		entry(4*time.Minute, 429, "quota_exceeded", 2),
		entry(48*time.Hour, 200, "none", 50),
	}))

	from, to := now.Add(-time.Hour), now.Add(time.Minute)

	total, err := repo.CountByTimeRange(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	rejected, err := repo.CountByStatusCodeRange(ctx, 429, 429, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rejected)

	reasons, err := repo.CountByAdmissionReason(ctx, from, to)
	require.NoError(t, err)
	require.NotEmpty(t, reasons)
	assert.Equal(t, "quota_exceeded", reasons[0].Reason)
	assert.Equal(t, int64(2), reasons[0].Count)

	logs, err := repo.FindByUser(ctx, userID, from, to, 2, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "none", logs[0].AdmissionReason, "newest first")

	deleted, err := repo.DeleteOldLogs(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

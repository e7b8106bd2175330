package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*models.Subscription
	fail map[uuid.UUID]error
}

func newFakeStore(subs ...*models.Subscription) *fakeStore {
	store := &fakeStore{
		subs: make(map[uuid.UUID]*models.Subscription),
		fail: make(map[uuid.UUID]error),
	}
	for _, sub := range subs {
		store.subs[sub.ID] = sub
	}
	return store
}

func (f *fakeStore) WithLockedSubscription(_ context.Context, id uuid.UUID, fn func(*models.Subscription) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail[id]; err != nil {
		return err
	}
	sub, ok := f.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}

	working := *sub
	if err := fn(&working); err != nil {
		return err
	}
	*sub = working
	return nil
}

func (f *fakeStore) ListActiveIDs(context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(f.subs))
	for id, sub := range f.subs {
		if sub.Status == models.SubscriptionActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) count(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id].DailyRequestCount
}

type event struct {
	userID  uuid.UUID
	kind    models.NotificationKind
	payload map[string]any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeNotifier) Notify(userID uuid.UUID, kind models.NotificationKind, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{userID: userID, kind: kind, payload: payload})
}

func (f *fakeNotifier) all() []event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event(nil), f.events...)
}

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newSub(limit, count int) *models.Subscription {
	return &models.Subscription{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		Plan:              &models.Plan{RequestLimit: limit},
		Status:            models.SubscriptionActive,
		EndDate:           testNow.Add(24 * time.Hour),
		DailyRequestCount: count,
		LastRequestReset:  testNow.Add(-time.Hour),
	}
}

func newTestTracker(store SubscriptionStore, notifier Notifier) *Tracker {
	tracker := NewTracker(store, notifier, time.UTC)
	tracker.now = func() time.Time { return testNow }
	return tracker
}

func TestTracker_DeniesAtLimitWithoutMutation(t *testing.T) {
	sub := newSub(5, 5)
	store := newFakeStore(sub)
	notifier := &fakeNotifier{}
	tracker := newTestTracker(store, notifier)

	allowed, err := tracker.TryConsume(context.Background(), &models.Subscription{ID: sub.ID})
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 5, store.count(sub.ID))

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, sub.UserID, events[0].userID)
	assert.Equal(t, models.NotificationRequestLimitExceeded, events[0].kind)
	assert.Equal(t, map[string]any{"currentCount": 5, "limit": 5}, events[0].payload)
}

func TestTracker_AllowsBelowLimit(t *testing.T) {
	sub := newSub(5, 4)
	store := newFakeStore(sub)
	notifier := &fakeNotifier{}
	tracker := newTestTracker(store, notifier)

	caller := &models.Subscription{ID: sub.ID}
	allowed, err := tracker.TryConsume(context.Background(), caller)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 5, store.count(sub.ID))
	assert.Equal(t, 5, caller.DailyRequestCount, "caller sees the committed count")
	assert.Empty(t, notifier.all())
}

func TestTracker_ResetsOnNewDay(t *testing.T) {
	sub := newSub(5, 5)
	sub.LastRequestReset = testNow.Add(-24 * time.Hour)
	store := newFakeStore(sub)
	tracker := newTestTracker(store, &fakeNotifier{})

	allowed, err := tracker.TryConsume(context.Background(), &models.Subscription{ID: sub.ID})
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, store.count(sub.ID))
	assert.Equal(t, testNow, store.subs[sub.ID].LastRequestReset)
}

func TestTracker_ConcurrentConsumersNeverExceedLimit(t *testing.T) {
	const limit, callers = 50, 200

	sub := newSub(limit, 0)
	store := newFakeStore(sub)
	notifier := &fakeNotifier{}
	tracker := newTestTracker(store, notifier)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			allowed, err := tracker.TryConsume(context.Background(), &models.Subscription{ID: sub.ID})
			assert.NoError(t, err)
			if allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit), admitted.Load())
	assert.Equal(t, limit, store.count(sub.ID))
	assert.Len(t, notifier.all(), callers-limit, "one notification per denied attempt")
}

func TestTracker_UnknownSubscription(t *testing.T) {
	tracker := newTestTracker(newFakeStore(), &fakeNotifier{})

	allowed, err := tracker.TryConsume(context.Background(), &models.Subscription{ID: uuid.New()})
	assert.False(t, allowed)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestTracker_Usage(t *testing.T) {
	tracker := newTestTracker(newFakeStore(), &fakeNotifier{})

	sub := newSub(10, 4)
	usage := tracker.Usage(sub)
	assert.Equal(t, 4, usage.Used)
	assert.Equal(t, 6, usage.Remaining)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), usage.ResetsAt)

	sub.LastRequestReset = testNow.Add(-48 * time.Hour)
	usage = tracker.Usage(sub)
	assert.Equal(t, 0, usage.Used, "a stale counter counts as reset")
	assert.Equal(t, 10, usage.Remaining)
}

func TestCoordinator_ResetsEveryActiveSubscription(t *testing.T) {
	subs := []*models.Subscription{newSub(5, 5), newSub(5, 3), newSub(10, 9)}
	cancelled := newSub(5, 5)
	cancelled.Status = models.SubscriptionCancelled

	store := newFakeStore(append(subs, cancelled)...)
	notifier := &fakeNotifier{}
	coordinator := NewCoordinator(store, notifier, 2)

	for run := 0; run < 2; run++ {
		reset, err := coordinator.ResetAllActiveQuotas(context.Background())
		require.NoError(t, err)
		assert.Equal(t, len(subs), reset)

		for _, sub := range subs {
			assert.Equal(t, 0, store.count(sub.ID))
		}
	}

	assert.Equal(t, 5, store.count(cancelled.ID))

	events := notifier.all()
	assert.Len(t, events, 2*len(subs))
	for _, e := range events {
		assert.Equal(t, models.NotificationDailyLimitReset, e.kind)
	}
}

func TestCoordinator_ContinuesPastFailures(t *testing.T) {
	good, bad := newSub(5, 5), newSub(5, 5)
	store := newFakeStore(good, bad)
	store.fail[bad.ID] = errors.New("deadlock detected")

	reset, err := NewCoordinator(store, &fakeNotifier{}, 4).ResetAllActiveQuotas(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, reset)
	assert.Equal(t, 0, store.count(good.ID))
	assert.Equal(t, 5, store.count(bad.ID))
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aman-churiwal/quota-gateway/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	s, err := New(Config{Location: berlin, At: "03:30"}, nil)
	require.NoError(t, err)

	before := time.Date(2026, 3, 10, 1, 0, 0, 0, berlin)
	assert.Equal(t, time.Date(2026, 3, 10, 3, 30, 0, 0, berlin), s.NextRun(before))

	exactly := time.Date(2026, 3, 10, 3, 30, 0, 0, berlin)
	assert.Equal(t, time.Date(2026, 3, 11, 3, 30, 0, 0, berlin), s.NextRun(exactly))

	// 23:00 UTC is already the next day in Berlin
	utc := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 3, 30, 0, 0, berlin), s.NextRun(utc))
}

func TestNew_RejectsBadClock(t *testing.T) {
	_, err := New(Config{At: "24:00"}, nil)
	assert.Error(t, err)
}

func TestRunAll_LockedPerDay(t *testing.T) {
	mr := miniredis.RunT(t)
	locker := storage.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	runs := 0
	job := Job{Name: "quota-reset", Run: func(context.Context) error {
		runs++
		return nil
	}}

	first, err := New(Config{At: "00:00"}, locker, job)
	require.NoError(t, err)
	second, err := New(Config{At: "00:00"}, locker, job)
	require.NoError(t, err)

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	first.RunAll(context.Background(), day)
	second.RunAll(context.Background(), day)
	assert.Equal(t, 1, runs, "second instance must skip the locked day")
	assert.True(t, mr.Exists("scheduler:lock:quota-reset:2026-03-10"))

	second.RunAll(context.Background(), day.AddDate(0, 0, 1))
	assert.Equal(t, 2, runs)
}

type brokenLocker struct{}

func (brokenLocker) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestRunAll_RunsWhenLockUnavailable(t *testing.T) {
	var order []string
	jobs := []Job{
		{Name: "failing", Run: func(context.Context) error {
			order = append(order, "failing")
			return errors.New("boom")
		}},
		{Name: "next", Run: func(context.Context) error {
			order = append(order, "next")
			return nil
		}},
	}

	s, err := New(Config{At: "00:00"}, brokenLocker{}, jobs...)
	require.NoError(t, err)

	s.RunAll(context.Background(), time.Now())
	assert.Equal(t, []string{"failing", "next"}, order, "a failing job must not stop the rest")
}

func TestStartStop(t *testing.T) {
	s, err := New(Config{At: "00:00"}, nil)
	require.NoError(t, err)

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

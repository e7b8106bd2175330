package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/config"
	log "github.com/sirupsen/logrus"
)

// Job is one piece of daily maintenance
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Locker takes a short lived lock; storage.RedisClient satisfies it
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// Holds scheduler configuration
type Config struct {
	Location   *time.Location
	At         string        // HH:MM in Location
	JobTimeout time.Duration // Default: 10 minutes
}

// Scheduler runs its jobs once a day at a fixed wall clock time.
// A per day lock keeps several gateway instances from running the same job.
type Scheduler struct {
	mu         sync.Mutex
	jobs       []Job
	locker     Locker
	location   *time.Location
	hour       int
	minute     int
	jobTimeout time.Duration
	owner      string
	now        func() time.Time
	stopChan   chan struct{}
	doneChan   chan struct{}
	running    bool
}

func New(cfg Config, locker Locker, jobs ...Job) (*Scheduler, error) {
	hour, minute, err := config.ParseClock(cfg.At)
	if err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}

	owner, _ := os.Hostname()
	if owner == "" {
		owner = "gateway"
	}

	return &Scheduler{
		jobs:       jobs,
		locker:     locker,
		location:   cfg.Location,
		hour:       hour,
		minute:     minute,
		jobTimeout: cfg.JobTimeout,
		owner:      fmt.Sprintf("%s:%d", owner, os.Getpid()),
		now:        time.Now,
	}, nil
}

// First scheduled time strictly after the given instant
func (s *Scheduler) NextRun(after time.Time) time.Time {
	local := after.In(s.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.location)
	}
	return next
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})

	log.WithFields(log.Fields{
		"jobs":     len(s.jobs),
		"next_run": s.NextRun(s.now()),
	}).Info("scheduler started")

	go s.loop(s.stopChan, s.doneChan)
}

// Stops the scheduler and waits for a running job to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	done := s.doneChan
	s.mu.Unlock()

	<-done
	log.Info("scheduler stopped")
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	for {
		next := s.NextRun(s.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			s.RunAll(ctx, next)
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// Runs every job whose lock for the given day is free.
// If the lock store is down the job runs anyway; all jobs are idempotent.
func (s *Scheduler) RunAll(ctx context.Context, day time.Time) {
	date := day.In(s.location).Format("2006-01-02")

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}

		entry := log.WithFields(log.Fields{"job": job.Name, "date": date})

		if s.locker != nil {
			acquired, err := s.locker.SetNX(ctx, lockKey(job.Name, date), s.owner, 25*time.Hour)
			if err != nil {
				entry.WithError(err).Warn("scheduler lock unavailable, running job anyway")
			} else if !acquired {
				entry.Debug("job already ran on another instance")
				continue
			}
		}

		s.runJob(ctx, job, entry)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job, entry *log.Entry) {
	ctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		entry.WithError(err).Error("scheduled job failed")
		return
	}
	entry.WithField("duration", time.Since(start)).Info("scheduled job finished")
}

func lockKey(job, date string) string {
	return fmt.Sprintf("scheduler:lock:%s:%s", job, date)
}

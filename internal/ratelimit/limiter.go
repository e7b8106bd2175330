package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/metrics"
	"github.com/aman-churiwal/quota-gateway/internal/models"
	log "github.com/sirupsen/logrus"
)

const blockedPrefix = "blocked:"

type Config struct {
	Window   time.Duration
	BlockTTL time.Duration
	Tiers    Tiers
}

// Decision is the outcome of one rate check
type Decision struct {
	Allowed    bool
	Blocked    bool // denied because a block marker is active
	FailedOpen bool // admitted because the counter store was unavailable
	Tier       models.Tier
	Limit      int
	Hits       int64
	Remaining  int
	RetryAfter time.Duration
	ResetIn    time.Duration
}

// Whole seconds, rounded up, a client should wait before retrying
func (d Decision) RetryAfterSeconds() int {
	return seconds(d.RetryAfter)
}

// Status is a read-only view of a caller's counters
type Status struct {
	Key              string      `json:"key"`
	Tier             models.Tier `json:"tier"`
	Limit            int         `json:"limit"`
	TotalHits        int64       `json:"totalHits"`
	WindowTTLSeconds int         `json:"windowTtlSeconds"`
	IsBlocked        bool        `json:"isBlocked"`
	BlockTTLSeconds  int         `json:"blockTtlSeconds"`
}

// Limiter enforces fixed-window, per-tier request ceilings with a
// temporary block once a caller exceeds its limit.
type Limiter struct {
	store    CounterStore
	window   time.Duration
	blockTTL time.Duration
	tiers    Tiers
}

func NewLimiter(store CounterStore, cfg Config) *Limiter {
	return &Limiter{
		store:    store,
		window:   cfg.Window,
		blockTTL: cfg.BlockTTL,
		tiers:    cfg.Tiers,
	}
}

func (l *Limiter) Limit(tier models.Tier) int {
	return l.tiers.Limit(tier)
}

// Counts one request for key against the tier limit.
// Never returns an error: store failures admit the request.
func (l *Limiter) CheckRate(ctx context.Context, key string, tier models.Tier) Decision {
	limit := l.tiers.Limit(tier)
	decision := Decision{Tier: tier, Limit: limit}

	// A blocked caller is denied without touching its window counter
	if l.blockTTL > 0 {
		block, err := l.store.Get(ctx, blockedPrefix+key)
		if err != nil {
			return l.failOpen(decision, key, "get", err)
		}
		if block.TotalHits > 0 {
			decision.Blocked = true
			decision.RetryAfter = block.TimeToExpire
			decision.ResetIn = block.TimeToExpire
			return decision
		}
	}

	record, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return l.failOpen(decision, key, "increment", err)
	}

	decision.Hits = record.TotalHits
	decision.ResetIn = record.TimeToExpire
	decision.Remaining = remaining(limit, record.TotalHits)

	if record.TotalHits <= int64(limit) {
		decision.Allowed = true
		return decision
	}

	decision.RetryAfter = record.TimeToExpire
	if l.blockTTL > 0 {
		set, err := l.store.SetIfAbsent(ctx, blockedPrefix+key, l.blockTTL)
		if err != nil {
			metrics.RateLimitStoreFailures.WithLabelValues("block").Inc()
			log.WithError(err).WithField("key", key).Warn("failed to set rate limit block")
		} else {
			if set {
				metrics.RateLimitBlocks.Inc()
				log.WithFields(log.Fields{
					"key":   key,
					"tier":  tier,
					"hits":  record.TotalHits,
					"limit": limit,
				}).Info("rate limit exceeded, caller blocked")
			}
			decision.Blocked = true
			decision.RetryAfter = max(decision.RetryAfter, l.blockTTL)
			decision.ResetIn = decision.RetryAfter
		}
	}

	return decision
}

// Returns the current counters for key without counting a request
func (l *Limiter) Peek(ctx context.Context, key string, tier models.Tier) (Status, error) {
	status := Status{Key: key, Tier: tier, Limit: l.tiers.Limit(tier)}

	record, err := l.store.Get(ctx, key)
	if err != nil {
		return status, err
	}
	status.TotalHits = record.TotalHits
	status.WindowTTLSeconds = seconds(record.TimeToExpire)

	block, err := l.store.Get(ctx, blockedPrefix+key)
	if err != nil {
		return status, err
	}
	status.IsBlocked = block.TotalHits > 0
	status.BlockTTLSeconds = seconds(block.TimeToExpire)

	return status, nil
}

// Clears both the window counter and any block for key
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.store.Reset(ctx, key); err != nil {
		return err
	}
	return l.store.Reset(ctx, blockedPrefix+key)
}

func (l *Limiter) failOpen(decision Decision, key, operation string, err error) Decision {
	metrics.RateLimitStoreFailures.WithLabelValues(operation).Inc()
	log.WithError(err).WithFields(log.Fields{
		"key":       key,
		"operation": operation,
	}).Warn("rate limit store unavailable, admitting request")

	decision.Allowed = true
	decision.FailedOpen = true
	decision.Remaining = decision.Limit
	return decision
}

func remaining(limit int, hits int64) int {
	left := int64(limit) - hits
	if left < 0 {
		return 0
	}
	return int(left)
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

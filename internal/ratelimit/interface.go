package ratelimit

import (
	"context"
	"time"
)

// Record is the state of one counter key in the shared store
type Record struct {
	TotalHits    int64
	TimeToExpire time.Duration
}

// CounterStore is the shared, TTL based counter store used by every instance.
// Implementations mutate state only through atomic primitives.
type CounterStore interface {
	// Atomically increments key. The TTL is armed only when the key is
	// fresh (TotalHits == 1); later increments leave it untouched.
	Increment(ctx context.Context, key string, ttl time.Duration) (Record, error)

	// Reads key without changing it. A missing key reports zero hits.
	Get(ctx context.Context, key string) (Record, error)

	// Deletes key
	Reset(ctx context.Context, key string) error

	// Sets key with ttl unless it already exists. Reports whether it was set.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

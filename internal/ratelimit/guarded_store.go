package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/circuitbreaker"
)

// GuardedStore bounds every call to the wrapped store with a timeout and a
// circuit breaker. Any failure comes back wrapped in ErrStoreUnavailable.
type GuardedStore struct {
	next    CounterStore
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
}

func NewGuardedStore(next CounterStore, breaker *circuitbreaker.CircuitBreaker, timeout time.Duration) *GuardedStore {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &GuardedStore{
		next:    next,
		breaker: breaker,
		timeout: timeout,
	}
}

func (g *GuardedStore) Increment(ctx context.Context, key string, ttl time.Duration) (Record, error) {
	var record Record
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		record, err = g.next.Increment(ctx, key, ttl)
		return err
	})
	return record, err
}

func (g *GuardedStore) Get(ctx context.Context, key string) (Record, error) {
	var record Record
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		record, err = g.next.Get(ctx, key)
		return err
	})
	return record, err
}

func (g *GuardedStore) Reset(ctx context.Context, key string) error {
	return g.call(ctx, func(ctx context.Context) error {
		return g.next.Reset(ctx, key)
	})
}

func (g *GuardedStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var set bool
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		set, err = g.next.SetIfAbsent(ctx, key, ttl)
		return err
	})
	return set, err
}

func (g *GuardedStore) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}

func (g *GuardedStore) call(ctx context.Context, fn func(context.Context) error) error {
	err := g.breaker.Call(func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

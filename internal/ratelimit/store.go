package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/storage"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// INCR and arm the TTL in one round trip. The TTL is also re-armed when it
// is missing so a key can never outlive its window.
var incrementScript = redis.NewScript(`
local hits = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if hits == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {hits, ttl}
`)

var getScript = redis.NewScript(`
local value = redis.call('GET', KEYS[1])
if not value then
	return {0, -2}
end
return {tonumber(value) or 0, redis.call('PTTL', KEYS[1])}
`)

type RedisStore struct {
	redis *storage.RedisClient
}

func NewRedisStore(redis *storage.RedisClient) *RedisStore {
	return &RedisStore{redis: redis}
}

func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (Record, error) {
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	result, err := s.redis.RunScript(ctx, incrementScript, []string{keyPrefix + key}, ttl.Milliseconds())
	if err != nil {
		return Record{}, err
	}

	return parseRecord(result)
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	result, err := s.redis.RunScript(ctx, getScript, []string{keyPrefix + key})
	if err != nil {
		return Record{}, err
	}

	return parseRecord(result)
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.redis.Del(ctx, keyPrefix+key)
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.redis.SetNX(ctx, keyPrefix+key, 1, ttl)
}

// Scripts reply with {hits, pttl}; negative pttl means no expiry
func parseRecord(result interface{}) (Record, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return Record{}, fmt.Errorf("unexpected script reply %T", result)
	}

	hits, ok := values[0].(int64)
	if !ok {
		return Record{}, fmt.Errorf("unexpected hits value %T", values[0])
	}
	pttl, ok := values[1].(int64)
	if !ok {
		return Record{}, fmt.Errorf("unexpected ttl value %T", values[1])
	}

	record := Record{TotalHits: hits}
	if pttl > 0 {
		record.TimeToExpire = time.Duration(pttl) * time.Millisecond
	}

	return record, nil
}

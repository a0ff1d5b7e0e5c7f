package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps window counters in Redis so that limits hold across
// multiple server instances. The counter key expires with the window,
// which makes the window reset automatic.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed counter store. All keys are
// namespaced under the given prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// incrWindowScript increments the counter and sets the expiry only when
// the key is new, so the window is anchored to the first request.
var incrWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// IncrWindow implements Store.
func (s *RedisStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	res, err := incrWindowScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("ratelimit: redis incr: unexpected reply of %d elements", len(res))
	}

	count, ok := res[0].(int64)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("ratelimit: redis incr: unexpected count type %T", res[0])
	}
	ttlMillis, ok := res[1].(int64)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("ratelimit: redis incr: unexpected ttl type %T", res[1])
	}

	resetAt := time.Now().Add(time.Duration(ttlMillis) * time.Millisecond)
	if ttlMillis < 0 {
		// Key without expiry, should not happen; treat as a fresh window.
		resetAt = time.Now().Add(window)
	}
	return count, resetAt, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis delete: %w", err)
	}
	return nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

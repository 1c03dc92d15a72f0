package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/readzone/identity-core/internal/core/port"
)

// hitScript increments the counter and, when this call created the key,
// attaches the window TTL in the same script execution. INCR and PEXPIRE
// arriving as separate commands could leave an immortal counter if the client
// dies in between; the script closes that gap.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// RateLimitStore implements port.RateLimitStore on Redis counters.
type RateLimitStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRateLimitStore constructs a store using the provided Redis client.
func NewRateLimitStore(client *redis.Client, keyPrefix string) *RateLimitStore {
	return &RateLimitStore{client: client, keyPrefix: keyPrefix}
}

// Hit counts one attempt against the key and returns the post-increment count
// plus the time left in the current window.
func (s *RateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	result, err := hitScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis rate limit hit: %w", err)
	}

	values, ok := result.([]any)
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("redis rate limit hit: unexpected reply %T", result)
	}

	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("redis rate limit hit: unexpected count %T", values[0])
	}

	ttlMillis, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("redis rate limit hit: unexpected ttl %T", values[1])
	}

	remaining := time.Duration(ttlMillis) * time.Millisecond
	if remaining < 0 {
		remaining = 0
	}

	return count, remaining, nil
}

// Reset clears the counter for the key.
func (s *RateLimitStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset: %w", err)
	}
	return nil
}

func (s *RateLimitStore) key(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", s.keyPrefix, key)
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)

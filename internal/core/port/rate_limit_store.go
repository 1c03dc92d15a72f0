package port

import (
	"context"
	"time"
)

// RateLimitStore is the shared counter store backing admission control.
//
// Hit must increment the counter for key and, when the increment created the
// key, set its TTL in the same atomic unit; a counter existing without an
// expiry is a correctness bug. It returns the post-increment count and the
// remaining window.
type RateLimitStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
	Reset(ctx context.Context, key string) error
}

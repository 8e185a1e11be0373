package ratelimit

import (
	"context"
	"time"
)

// KeyedCounterStore tracks windowed counters keyed by an arbitrary string
// (typically "scope:clientAddr"). The default implementation is in-process;
// a multi-instance deployment swaps in the redis-backed one without touching
// call sites.
type KeyedCounterStore interface {
	// Increment bumps the counter for key, creating it with the given
	// window when absent or expired. It returns the post-increment count
	// and the moment the window resets.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	// Peek reads the counter without modifying it. A missing or expired
	// key reads as zero.
	Peek(ctx context.Context, key string) (count int64, resetAt time.Time, err error)
	// Reset removes the counter for key.
	Reset(ctx context.Context, key string) error
}

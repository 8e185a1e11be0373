package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	failuresKeyPrefix = "login-failures:"
	lockKeyPrefix     = "login-lock:"
)

// LockoutGuard blocks further login attempts from a client address after
// repeated consecutive failures. The scope is the address, not the account:
// simpler, and it avoids leaking which accounts exist, at the cost of letting
// one attacker lock out a shared NAT.
type LockoutGuard struct {
	store        KeyedCounterStore
	threshold    int64
	lockDuration time.Duration
}

// NewLockoutGuard creates a guard that locks an address for lockDuration
// once threshold consecutive failures accumulate. Zero values fall back to
// 5 failures / 15 minutes.
func NewLockoutGuard(store KeyedCounterStore, threshold int64, lockDuration time.Duration) *LockoutGuard {
	if threshold <= 0 {
		threshold = 5
	}
	if lockDuration <= 0 {
		lockDuration = 15 * time.Minute
	}
	return &LockoutGuard{store: store, threshold: threshold, lockDuration: lockDuration}
}

// Check reports whether addr is currently locked out and, if so, for how
// much longer. It is intended to run before the rate limiter so a locked
// address is rejected cheaply. Store failures fail open (logged).
func (g *LockoutGuard) Check(ctx context.Context, addr string) Decision {
	count, resetAt, err := g.store.Peek(ctx, lockKeyPrefix+addr)
	if err != nil {
		log.Error().Err(err).Msg("lockout store unavailable, failing open")
		return Decision{Allowed: true}
	}
	if count > 0 {
		return Decision{Allowed: false, RetryAfter: untilCeil(resetAt)}
	}
	return Decision{Allowed: true}
}

// RecordFailure registers a failed login attempt from addr. Reaching the
// threshold creates a lock record that expires after the full lock duration,
// regardless of when within the failure window the threshold was hit.
func (g *LockoutGuard) RecordFailure(ctx context.Context, addr string) {
	count, _, err := g.store.Increment(ctx, failuresKeyPrefix+addr, g.lockDuration)
	if err != nil {
		log.Error().Err(err).Msg("failed to record login failure")
		return
	}
	if count >= g.threshold {
		if _, _, err := g.store.Increment(ctx, lockKeyPrefix+addr, g.lockDuration); err != nil {
			log.Error().Err(err).Msg("failed to create lockout record")
			return
		}
		log.Warn().Str("addr", addr).Int64("failures", count).Msg("address locked out after repeated login failures")
	}
}

// Clear wipes the failure counter for addr after a successful login. An
// existing lock is left in place; only its trigger counter resets.
func (g *LockoutGuard) Clear(ctx context.Context, addr string) {
	if err := g.store.Reset(ctx, failuresKeyPrefix+addr); err != nil {
		log.Error().Err(err).Msg("failed to clear login failure counter")
	}
}

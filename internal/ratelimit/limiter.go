package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Scope identifies the endpoint family a limit applies to. Each scope gets
// its own counters and its own ceiling.
type Scope string

const (
	ScopeSignup    Scope = "signup"
	ScopeLogin     Scope = "login"
	ScopeRefresh   Scope = "refresh"
	ScopeKeepalive Scope = "keepalive"
)

// Limit is the ceiling for one scope: at most Max calls per Window per
// client address.
type Limit struct {
	Max    int64
	Window time.Duration
}

// DefaultLimits are the per-scope ceilings used when config does not
// override them.
func DefaultLimits() map[Scope]Limit {
	return map[Scope]Limit{
		ScopeSignup:    {Max: 5, Window: time.Hour},
		ScopeLogin:     {Max: 10, Window: 15 * time.Minute},
		ScopeRefresh:   {Max: 60, Window: 15 * time.Minute},
		ScopeKeepalive: {Max: 120, Window: 15 * time.Minute},
	}
}

// Decision is the outcome of a limiter check. RetryAfter is only meaningful
// when Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter enforces sliding-window request ceilings per (scope, address).
type Limiter struct {
	store  KeyedCounterStore
	limits map[Scope]Limit
}

// NewLimiter creates a limiter over the given counter store. Nil limits
// fall back to DefaultLimits.
func NewLimiter(store KeyedCounterStore, limits map[Scope]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{store: store, limits: limits}
}

// Allow records one call for (scope, addr) and reports whether it is within
// the ceiling. A store failure fails open: availability beats strictness for
// the in-process default, and the failure is logged for operators.
func (l *Limiter) Allow(ctx context.Context, scope Scope, addr string) Decision {
	limit, ok := l.limits[scope]
	if !ok {
		return Decision{Allowed: true}
	}

	count, resetAt, err := l.store.Increment(ctx, string(scope)+":"+addr, limit.Window)
	if err != nil {
		log.Error().Err(err).Str("scope", string(scope)).Msg("rate limit store unavailable, failing open")
		return Decision{Allowed: true}
	}
	if count > limit.Max {
		return Decision{Allowed: false, RetryAfter: untilCeil(resetAt)}
	}
	return Decision{Allowed: true}
}

// untilCeil returns the duration to t rounded up to whole seconds, never
// less than one second, suitable for a Retry-After header.
func untilCeil(t time.Time) time.Duration {
	secs := math.Ceil(time.Until(t).Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

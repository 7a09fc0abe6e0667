package cache

import (
	"context"
	"time"

	"github.com/altus4/core/internal/constants"
)

// RateLimiter enforces the tier-aware, fixed one-minute-window request cap (C8) on
// top of the fail-soft Store. A Redis outage fails open: Allow returns
// true so the data plane degrades to "unlimited" rather than rejecting
// all traffic.
type RateLimiter struct {
	store *Store
}

// NewRateLimiter wraps store for rate-limiting use.
func NewRateLimiter(store *Store) *RateLimiter {
	return &RateLimiter{store: store}
}

// Result reports the outcome of a rate-limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allow checks and increments the counter of the current fixed one-minute
// window (keyed by Unix minute) for subjectID against tier's
// RequestsPerMinute limit.
func (rl *RateLimiter) Allow(ctx context.Context, subjectID string, tier string) Result {
	limits := constants.GetTierLimits(tier)
	if limits.RequestsPerMinute <= 0 {
		return Result{Allowed: true, Limit: 0, Remaining: -1}
	}

	now := time.Now()
	bucket := now.Unix() / 60
	key := RateLimitKey(subjectID, bucket)

	count, ok := rl.store.Incr(ctx, key)
	if !ok {
		// Redis unavailable: fail open.
		return Result{Allowed: true, Limit: limits.RequestsPerMinute, Remaining: limits.RequestsPerMinute}
	}
	if count == 1 {
		rl.store.Expire(ctx, key, 90*time.Second)
	}

	resetAt := time.Unix((bucket+1)*60, 0)
	remaining := int(int64(limits.RequestsPerMinute) - count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(limits.RequestsPerMinute),
		Limit:     limits.RequestsPerMinute,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

package mw

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/altus4/core/internal/cache"
	"github.com/altus4/core/internal/constants"
)

// RateLimitByTier returns middleware that enforces the authenticated
// identity's tier-based requests-per-minute limit, applied after Auth.
// Unauthenticated requests fall through untouched; pair with RateLimitByIP
// to bound those.
func RateLimitByTier(limiter *cache.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}

			subject := identity.UserID
			if identity.IsAPIKey {
				subject = identity.APIKeyID
			}

			result := limiter.Allow(r.Context(), subject, identity.Tier)
			tier := identity.Tier
			if !constants.ValidTier(tier) {
				tier = constants.TierFree
			}
			w.Header().Set("X-RateLimit-Tier", tier)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(result.ResetAt).Seconds())))
				http.Error(w, fmt.Sprintf(
					`{"success":false,"error":{"code":"rate_limited","message":"rate limit exceeded for %s tier"}}`, identity.Tier),
					http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP returns a middleware that rate limits by IP address, used
// ahead of authentication to bound unauthenticated traffic.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitGlobal returns a middleware that applies a single global rate
// limit across all requests, a last line of defense against overload.
func RateLimitGlobal(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "global", nil
		}),
	)
}

// DefaultGlobalIPLimit returns the system-wide per-IP rate limit.
func DefaultGlobalIPLimit() int {
	return constants.GlobalIPRateLimitPerMinute
}

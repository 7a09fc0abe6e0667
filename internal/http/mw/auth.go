// Package mw contains HTTP middleware for Altus4 Core.
package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/altus4/core/internal/auth"
	"github.com/altus4/core/internal/models"
)

// ContextKey is a type for context keys.
type ContextKey string

const identityKey ContextKey = "identity"

// Auth returns authentication middleware accepting either a bearer JWT
// (management plane) or an altus4_sk_ API key (data plane).
func Auth(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, `{"success":false,"error":{"code":"unauthorized","message":"missing authorization header"}}`, http.StatusUnauthorized)
				return
			}

			identity, err := authenticate(r.Context(), authenticator, token)
			if err != nil {
				http.Error(w, `{"success":false,"error":{"code":"unauthorized","message":"invalid token"}}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth validates auth if present but allows unauthenticated
// requests through unmodified.
func OptionalAuth(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := authenticate(r.Context(), authenticator, token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken parses the Authorization header leniently: the scheme is
// matched case-insensitively and surrounding whitespace on both the
// header and the token is trimmed, so "bearer  x", "Bearer x", and
// "BEARER x" are all accepted.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// authenticate dispatches to API key or JWT verification based on the
// altus4_sk_ prefix convention.
func authenticate(ctx context.Context, authenticator *auth.Authenticator, token string) (*auth.Identity, error) {
	if strings.HasPrefix(token, "altus4_sk_") {
		return authenticator.VerifyAPIKey(ctx, token)
	}
	return authenticator.VerifyToken(token)
}

// GetIdentity retrieves the authenticated identity from context, or nil
// if the request was not authenticated.
func GetIdentity(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(identityKey).(*auth.Identity)
	return identity
}

// RequireAdmin returns middleware that requires the admin role.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if !identity.IsAdmin() {
				http.Error(w, `{"success":false,"error":{"code":"forbidden","message":"admin role required"}}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission returns middleware that rejects API-key identities
// lacking p (§4.9/C9). Bearer-JWT (management-plane) identities are never
// scoped to a permission set and always pass.
func RequirePermission(p models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if !identity.HasPermission(p) {
				http.Error(w, `{"success":false,"error":{"code":"forbidden","message":"this credential lacks the required permission"}}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

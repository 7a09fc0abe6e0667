// Package http assembles the HTTP API surface: middleware stack,
// route table, and handler wiring for the data and management planes.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/altus4/core/internal/auth"
	"github.com/altus4/core/internal/cache"
	"github.com/altus4/core/internal/constants"
	"github.com/altus4/core/internal/http/handlers"
	"github.com/altus4/core/internal/http/mw"
	"github.com/altus4/core/internal/models"
)

// Handlers bundles every HTTP handler needed to assemble the router.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Databases *handlers.DatabaseHandler
	Keys      *handlers.KeyHandler
	Search    *handlers.SearchHandler
	Analytics *handlers.AnalyticsHandler
}

// NewRouter builds the chi router: global middleware, then the
// public/data-plane/management-plane route groups (spec §6).
func NewRouter(h *Handlers, authenticator *auth.Authenticator, limiter *cache.RateLimiter, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          constants.DefaultRequestTimeout,
		Extended:         constants.SearchRequestTimeout,
		ExtendedPatterns: []string{"/search"},
	}))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestSize(constants.MaxRequestBodySize))
	r.Use(mw.RateLimitByIP(mw.DefaultGlobalIPLimit()))
	r.Use(mw.APIVersion())

	r.Get("/health", health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)

			r.Group(func(r chi.Router) {
				r.Use(mw.Auth(authenticator))
				r.Use(mw.RateLimitByTier(limiter))
				r.Get("/profile", h.Auth.Profile)
				r.Post("/change-password", h.Auth.ChangePassword)
				r.Post("/refresh", h.Auth.Refresh)
				r.Post("/logout", h.Auth.Logout)
				r.Delete("/account", h.Auth.DeleteAccount)
			})
		})

		// Data plane: search, under API-key or bearer auth, gated by the
		// search/analytics permissions for API-key credentials.
		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(authenticator))
			r.Use(mw.RateLimitByTier(limiter))

			r.Group(func(r chi.Router) {
				r.Use(mw.RequirePermission(models.PermissionSearch))
				r.Post("/search", h.Search.Search)
				r.Get("/search/suggestions", h.Search.Suggestions)
				r.Get("/search/history", h.Analytics.History)
			})
			r.Group(func(r chi.Router) {
				r.Use(mw.RequirePermission(models.PermissionAnalytics))
				r.Post("/search/analyze", h.Search.Analyze)
				r.Get("/search/trends", h.Analytics.Trends)
			})
		})

		// Management plane: connections, API keys, analytics.
		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(authenticator))
			r.Use(mw.RateLimitByTier(limiter))

			r.Route("/databases", func(r chi.Router) {
				r.Get("/", h.Databases.List)
				r.Post("/", h.Databases.Create)
				r.Get("/status", h.Databases.Status)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Databases.Get)
					r.Put("/", h.Databases.Update)
					r.Delete("/", h.Databases.Delete)
					r.Post("/test", h.Databases.Test)
					r.Get("/schema", h.Databases.Schema)
				})
			})

			r.Route("/keys", func(r chi.Router) {
				r.Get("/", h.Keys.List)
				r.Post("/", h.Keys.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Keys.Get)
					r.Delete("/", h.Keys.Revoke)
					r.Post("/regenerate", h.Keys.Regenerate)
					r.Get("/usage", h.Keys.Usage)
				})
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/popular", h.Analytics.Popular)
				r.Get("/performance", h.Analytics.Performance)
				r.Get("/trends", h.Analytics.Trends)
				r.Get("/history", h.Analytics.History)
				r.Get("/slowest", h.Analytics.Slowest)
			})
		})
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

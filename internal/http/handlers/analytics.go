package handlers

import (
	"net/http"
	"time"

	"github.com/altus4/core/internal/analytics"
	"github.com/altus4/core/internal/apperrors"
	"github.com/altus4/core/internal/http/mw"
	"github.com/altus4/core/internal/http/respond"
)

// AnalyticsHandler implements the search-analytics aggregate endpoints
// (C7) behind bearer-token auth.
type AnalyticsHandler struct {
	svc *analytics.Service
}

// NewAnalyticsHandler builds an AnalyticsHandler.
func NewAnalyticsHandler(svc *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

func since(r *http.Request) time.Time {
	days := parsePositiveInt(r.URL.Query().Get("days"), 30)
	return time.Now().AddDate(0, 0, -days)
}

// Popular returns the authenticated user's most frequent search terms.
func (h *AnalyticsHandler) Popular(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	limit := parsePositiveInt(r.URL.Query().Get("limit"), 10)
	rows, err := h.svc.PopularQueries(r.Context(), identity.UserID, since(r), limit)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, rows)
}

// Performance returns the authenticated user's execution-time and
// cache/AI usage summary.
func (h *AnalyticsHandler) Performance(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	summary, err := h.svc.PerformanceSummary(r.Context(), identity.UserID, since(r))
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, summary)
}

// Trends returns the authenticated user's search volume over time.
func (h *AnalyticsHandler) Trends(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	points, err := h.svc.TimeSeries(r.Context(), identity.UserID, since(r))
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, points)
}

// History returns the authenticated user's raw search event log.
func (h *AnalyticsHandler) History(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	limit := parsePositiveInt(r.URL.Query().Get("limit"), 50)
	offset := parsePositiveInt(r.URL.Query().Get("offset"), 0)
	events, err := h.svc.History(r.Context(), identity.UserID, limit, offset)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, events)
}

// Slowest returns the authenticated user's slowest recent searches.
func (h *AnalyticsHandler) Slowest(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	limit := parsePositiveInt(r.URL.Query().Get("limit"), 10)
	events, err := h.svc.SlowestQueries(r.Context(), identity.UserID, since(r), limit)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, events)
}

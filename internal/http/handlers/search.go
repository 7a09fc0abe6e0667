package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/altus4/core/internal/apperrors"
	"github.com/altus4/core/internal/http/mw"
	"github.com/altus4/core/internal/http/respond"
	"github.com/altus4/core/internal/models"
	"github.com/altus4/core/internal/orchestrator"
)

// SearchHandler implements the data-plane search endpoint (C5) behind
// API-key or bearer-token auth.
type SearchHandler struct {
	orch *orchestrator.Orchestrator
}

// NewSearchHandler builds a SearchHandler.
func NewSearchHandler(orch *orchestrator.Orchestrator) *SearchHandler {
	return &SearchHandler{orch: orch}
}

type searchRequestBody struct {
	ConnectionIDs    []string `json:"connection_ids"`
	Query            string   `json:"query"`
	Tables           []string `json:"tables,omitempty"`
	Columns          []string `json:"columns,omitempty"`
	SearchMode       string   `json:"search_mode,omitempty"`
	Limit            int      `json:"limit"`
	Offset           int      `json:"offset"`
	IncludeAnalytics bool     `json:"include_analytics,omitempty"`
}

// Search fans a query out across the caller's registered connections,
// optionally AI-enriched, and returns ranked, paginated results.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.Error(w, r, apperrors.Validation("malformed request body"))
		return
	}

	resp, err := h.orch.Search(r.Context(), models.SearchRequest{
		UserID:           identity.UserID,
		ConnectionIDs:    body.ConnectionIDs,
		Query:            body.Query,
		Tables:           body.Tables,
		Columns:          body.Columns,
		SearchMode:       models.SearchMode(body.SearchMode),
		Limit:            body.Limit,
		Offset:           body.Offset,
		IncludeAnalytics: body.IncludeAnalytics,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, resp)
}

// Suggestions runs a one-result search for the query parameter over the
// connection_id parameters and returns only that search's AI-generated
// suggestions. The search takes the normal path: a cached response when
// one exists, otherwise a fan-out to the listed databases.
func (h *SearchHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	connectionIDs := r.URL.Query()["connection_id"]
	query := r.URL.Query().Get("query")

	resp, err := h.orch.Search(r.Context(), models.SearchRequest{
		UserID:        identity.UserID,
		ConnectionIDs: connectionIDs,
		Query:         query,
		Limit:         1,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]interface{}{"suggestions": resp.Suggestions})
}

// Analyze returns the computed optimization hints for a query shape
// without returning matched rows.
func (h *SearchHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.Error(w, r, apperrors.Validation("malformed request body"))
		return
	}

	resp, err := h.orch.Search(r.Context(), models.SearchRequest{
		UserID:        identity.UserID,
		ConnectionIDs: body.ConnectionIDs,
		Query:         body.Query,
		Tables:        body.Tables,
		Limit:         1,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]interface{}{"query_optimization": resp.QueryOptimization})
}

func parsePositiveInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

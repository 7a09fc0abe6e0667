// Package orchestrator implements the Search Orchestrator (C5): fanning a
// validated search request out across a tenant's registered connections,
// building FULLTEXT (with LIKE fallback) queries from the discovered
// schema, and merging, ranking, and paginating the combined result set.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/altus4/core/internal/apperrors"
	"github.com/altus4/core/internal/cache"
	"github.com/altus4/core/internal/constants"
	"github.com/altus4/core/internal/idgen"
	"github.com/altus4/core/internal/models"
	"github.com/altus4/core/internal/repository"
	"github.com/altus4/core/internal/schema"
)

// ConnectionProvider resolves a pooled *sql.DB for a registered
// connection ID, the seam the registry (C3) satisfies.
type ConnectionProvider interface {
	GetConnection(ctx context.Context, connectionID string) (*sql.DB, error)
}

// QueryRewriter optionally rewrites a natural-language query into search
// terms better suited to FULLTEXT matching and enriches results, the seam
// the AI adapter (C10) satisfies. A nil QueryRewriter disables AI
// enrichment entirely.
type QueryRewriter interface {
	RewriteQuery(ctx context.Context, query string) (string, error)
	Suggest(ctx context.Context, query string, results []models.SearchResult) ([]string, error)
	Optimize(ctx context.Context, query string, tableCount int) (string, error)
	Categorize(ctx context.Context, results []models.SearchResult) (map[string]string, error)
}

// AnalyticsRecorder records a completed search and serves the trend
// aggregate attached to include_analytics responses, the seam the
// analytics aggregator (C7) satisfies. A nil AnalyticsRecorder disables
// both.
type AnalyticsRecorder interface {
	RecordSearch(ctx context.Context, event *models.AnalyticsEvent) error
	TimeSeries(ctx context.Context, userID string, since time.Time) ([]repository.TimeSeriesPoint, error)
}

// Orchestrator implements C5.
type Orchestrator struct {
	connections ConnectionProvider
	inspector   *schema.Inspector
	cache       *cache.Store
	llm         QueryRewriter
	analytics   AnalyticsRecorder
	logger      *slog.Logger
}

// New builds an Orchestrator. llm and analytics may be nil to disable AI
// enrichment and analytics recording respectively.
func New(connections ConnectionProvider, inspector *schema.Inspector, store *cache.Store, llm QueryRewriter, analytics AnalyticsRecorder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{connections: connections, inspector: inspector, cache: store, llm: llm, analytics: analytics, logger: logger}
}

const (
	defaultLimit = 20
	maxLimit     = 100
	trendsWindow = 7 * 24 * time.Hour
	slowQueryMs  = 5000
)

// Search executes req, returning a paginated, ranked, cached response. An
// empty/whitespace query or an empty connection set short-circuits to an
// empty, 200-equivalent response rather than an error (§4.5/§8); both
// bypass cache lookup and analytics recording, since there was nothing to
// search.
func (o *Orchestrator) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()

	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Limit <= 0 || req.Limit > maxLimit {
		req.Limit = defaultLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	if req.SearchMode == "" {
		req.SearchMode = models.SearchModeNatural
	}

	if len(req.ConnectionIDs) == 0 {
		return emptyResponse(req, models.OptimizationHint{
			Type: "connection", Impact: "high",
			Message: "No databases specified; register and select at least one connection",
		}), nil
	}
	if strings.TrimSpace(req.Query) == "" {
		return emptyResponse(req), nil
	}

	var cacheKey string
	if !req.IncludeAnalytics {
		cacheKey = cache.SearchKey(req.ConnectionIDs, req.Tables, req.Columns, req.Query, string(req.SearchMode), req.Limit, req.Offset)
		var cached models.SearchResponse
		if found, _ := o.cache.Get(ctx, cacheKey, &cached); found {
			cached.UsedCache = true
			return &cached, nil
		}
	}

	rewritten := req.Query
	usedAI := false
	if req.SearchMode == models.SearchModeSemantic && o.llm != nil {
		if r, err := o.llm.RewriteQuery(ctx, req.Query); err == nil && r != "" {
			rewritten = r
			usedAI = true
		}
	}

	results, err := o.fanOut(ctx, req, rewritten)
	if err != nil {
		return nil, err
	}

	rankAndSort(results)
	total := len(results)
	page := paginate(results, req.Limit, req.Offset)

	resp := &models.SearchResponse{
		Query:           req.Query,
		RewrittenQuery:  rewritten,
		Results:         page,
		TotalCount:      total,
		Page:            req.Offset/req.Limit + 1,
		Limit:           req.Limit,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		UsedAI:          usedAI,
	}

	o.enrich(ctx, req, resp)
	resp.QueryOptimization = o.optimizationHints(ctx, req, resp)

	if req.IncludeAnalytics && o.analytics != nil {
		if points, err := o.analytics.TimeSeries(ctx, req.UserID, time.Now().Add(-trendsWindow)); err == nil {
			resp.Trends = make([]models.TimeSeriesPoint, len(points))
			for i, p := range points {
				resp.Trends[i] = models.TimeSeriesPoint{Date: p.Date, Count: p.Count}
			}
		}
	}

	if !req.IncludeAnalytics {
		o.cache.Set(ctx, cacheKey, resp, constants.SearchCacheTTL)
	}
	o.recordAnalytics(ctx, req, resp)
	return resp, nil
}

// emptyResponse builds the 200-equivalent empty result used for the
// empty-query and empty-databases short circuits.
func emptyResponse(req models.SearchRequest, hints ...models.OptimizationHint) *models.SearchResponse {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return &models.SearchResponse{
		Query:             req.Query,
		Results:           []models.SearchResult{},
		Page:              1,
		Limit:             limit,
		QueryOptimization: hints,
	}
}

// enrich applies best-effort AI categorisation and suggestion generation
// to the paginated result page. Any AI failure leaves the response
// un-enriched rather than failing the search.
func (o *Orchestrator) enrich(ctx context.Context, req models.SearchRequest, resp *models.SearchResponse) {
	if o.llm == nil || len(resp.Results) == 0 {
		return
	}

	if categories, err := o.llm.Categorize(ctx, resp.Results); err == nil {
		seen := make(map[string]bool, len(categories))
		for i := range resp.Results {
			c, ok := categories[resp.Results[i].PrimaryKey]
			if !ok || c == "" {
				continue
			}
			resp.Results[i].Categories = []string{c}
			if !seen[c] {
				seen[c] = true
				resp.Categories = append(resp.Categories, c)
			}
		}
	}

	if suggestions, err := o.llm.Suggest(ctx, req.Query, resp.Results); err == nil {
		resp.Suggestions = suggestions
	}
}

// optimizationHints computes the deterministic index/query hints and
// merges in the AI adapter's tip, when available.
func (o *Orchestrator) optimizationHints(ctx context.Context, req models.SearchRequest, resp *models.SearchResponse) []models.OptimizationHint {
	var hints []models.OptimizationHint
	if resp.ExecutionTimeMs > slowQueryMs {
		hints = append(hints, models.OptimizationHint{
			Type: "index", Impact: "high",
			Message: "query took over 5s; consider adding or tuning an index",
		})
	}
	if resp.TotalCount == 0 {
		hints = append(hints, models.OptimizationHint{
			Type: "query", Impact: "medium",
			Message: "No results; broaden terms",
		})
	}
	if o.llm != nil {
		if tip, err := o.llm.Optimize(ctx, req.Query, len(req.ConnectionIDs)); err == nil && tip != "" {
			hints = append(hints, models.OptimizationHint{Type: "ai", Impact: "low", Message: tip})
		}
	}
	return hints
}

func (o *Orchestrator) recordAnalytics(ctx context.Context, req models.SearchRequest, resp *models.SearchResponse) {
	if o.analytics == nil {
		return
	}
	connectionID := ""
	if len(req.ConnectionIDs) > 0 {
		connectionID = req.ConnectionIDs[0]
	}
	event := &models.AnalyticsEvent{
		ID:              idgen.New(),
		UserID:          req.UserID,
		ConnectionID:    connectionID,
		QueryText:       req.Query,
		ResultCount:     resp.TotalCount,
		ExecutionTimeMs: resp.ExecutionTimeMs,
		UsedCache:       resp.UsedCache,
		UsedAI:          resp.UsedAI,
		CreatedAt:       time.Now(),
	}
	if err := o.analytics.RecordSearch(ctx, event); err != nil {
		o.logger.Warn("failed to record search analytics", "error", err)
	}
}

const maxQueryLength = 1000

// invalidQueryChars is the punctuation-only charset that, if it is all a
// query consists of, leaves no searchable term (§4.5/§8).
const invalidQueryChars = "!@#$%^&*()-_+=[]{}|\\:\";'<>?,./~`"

// validate rejects only the two genuine error conditions (too long, no
// alphanumeric content); an empty query or empty connection set is a
// valid request that Search resolves to an empty response rather than
// an error.
func validate(req models.SearchRequest) error {
	if len(req.Query) > maxQueryLength {
		return apperrors.Validation("query exceeds the maximum length of 1000 characters",
			"shorten the query")
	}
	trimmed := strings.TrimSpace(req.Query)
	if trimmed != "" && strings.Trim(trimmed, invalidQueryChars) == "" {
		return apperrors.Validation("query consists only of punctuation with no searchable terms",
			"include at least one alphanumeric character")
	}
	return nil
}

// fanOut runs one schema-aware search per connection concurrently,
// bounded by the request's context deadline.
func (o *Orchestrator) fanOut(ctx context.Context, req models.SearchRequest, query string) ([]models.SearchResult, error) {
	g, gctx := errgroup.WithContext(ctx)

	resultsByConn := make([][]models.SearchResult, len(req.ConnectionIDs))
	failed := make([]bool, len(req.ConnectionIDs))
	for idx, connID := range req.ConnectionIDs {
		idx, connID := idx, connID
		g.Go(func() error {
			results, err := o.searchConnection(gctx, connID, query, req.Tables, req.Columns, req.Limit, req.Offset)
			if err != nil {
				o.logger.Warn("connection search failed, excluding from results", "connection_id", connID, "error", err)
				failed[idx] = true
				return nil
			}
			resultsByConn[idx] = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, apperrors.Internal(err)
	}

	failedCount := 0
	for _, f := range failed {
		if f {
			failedCount++
		}
	}
	if failedCount == len(req.ConnectionIDs) {
		return nil, apperrors.New(apperrors.CodeUpstreamError, 502,
			"search failed across every requested connection", true,
			"verify the requested connection_ids are registered and reachable")
	}

	var all []models.SearchResult
	for _, r := range resultsByConn {
		all = append(all, r...)
	}
	return all, nil
}

func (o *Orchestrator) searchConnection(ctx context.Context, connectionID, query string, tableFilter, columnFilter []string, limit, offset int) ([]models.SearchResult, error) {
	db, err := o.connections.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	tables, err := o.discoverSchema(ctx, db, connectionID)
	if err != nil {
		return nil, err
	}

	var results []models.SearchResult
	for _, table := range tables {
		if len(tableFilter) > 0 && !contains(tableFilter, table.TableName) {
			continue
		}
		rows, err := o.searchTable(ctx, db, connectionID, table, query, columnFilter, limit, offset)
		if err != nil {
			o.logger.Warn("table search failed, skipping", "connection_id", connectionID, "table", table.TableName, "error", err)
			continue
		}
		results = append(results, rows...)
	}
	return results, nil
}

func (o *Orchestrator) discoverSchema(ctx context.Context, db *sql.DB, connectionID string) ([]models.TableSchema, error) {
	key := cache.SchemaKey(connectionID)
	var cached []models.TableSchema
	if found, _ := o.cache.Get(ctx, key, &cached); found {
		return cached, nil
	}

	tables, err := o.inspector.Discover(ctx, db, connectionID)
	if err != nil {
		return nil, err
	}
	o.cache.Set(ctx, key, tables, constants.SchemaCacheTTL)
	return tables, nil
}

// searchTable builds a MATCH ... AGAINST query over the table's FULLTEXT
// columns (intersected with columnFilter, if supplied), falling back to a
// LIKE-based query over searchable columns when the table has no
// FULLTEXT index. Both select only a literal table_name column plus the
// matched/searchable columns themselves — never every column of the
// table — so matched_columns (computed downstream) only ever reflects
// columns the search actually touched.
func (o *Orchestrator) searchTable(ctx context.Context, db *sql.DB, connectionID string, table models.TableSchema, query string, columnFilter []string, limit, offset int) ([]models.SearchResult, error) {
	var rows *sql.Rows
	var err error

	if len(table.FullTextColumns) > 0 {
		matchCols := table.FullTextColumns
		if len(columnFilter) > 0 {
			matchCols = intersect(matchCols, columnFilter)
		}
		if len(matchCols) == 0 {
			return nil, nil
		}
		matchExpr := strings.Join(quoteAll(matchCols), ", ")
		selectCols := fmt.Sprintf("'%s' as table_name, %s", table.TableName, matchExpr)
		sqlText := fmt.Sprintf(
			"SELECT %s, MATCH(%s) AGAINST (? IN NATURAL LANGUAGE MODE) AS relevance_score FROM `%s` WHERE MATCH(%s) AGAINST (? IN NATURAL LANGUAGE MODE) ORDER BY relevance_score DESC LIMIT %d OFFSET %d",
			selectCols, matchExpr, table.TableName, matchExpr, limit, offset)
		rows, err = db.QueryContext(ctx, sqlText, query, query)
	} else {
		likeCols := searchableColumns(table.Columns)
		if len(columnFilter) > 0 {
			likeCols = intersect(likeCols, columnFilter)
		}
		if len(likeCols) == 0 {
			return nil, nil
		}
		conds := make([]string, len(likeCols))
		args := make([]interface{}, len(likeCols))
		pattern := "%" + query + "%"
		for i, c := range likeCols {
			conds[i] = fmt.Sprintf("`%s` LIKE ?", c)
			args[i] = pattern
		}
		selectCols := fmt.Sprintf("'%s' as table_name, %s, 0 as relevance_score", table.TableName, strings.Join(quoteAll(likeCols), ", "))
		sqlText := fmt.Sprintf("SELECT %s FROM `%s` WHERE %s LIMIT %d OFFSET %d",
			selectCols, table.TableName, strings.Join(conds, " OR "), limit, offset)
		rows, err = db.QueryContext(ctx, sqlText, args...)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanResults(rows, connectionID, query)
}

func searchableColumns(cols []models.ColumnSchema) []string {
	var out []string
	for _, c := range cols {
		if c.IsSearchable {
			out = append(out, c.Name)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	var out []string
	for _, s := range a {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}

// scanResults maps each row into a SearchResult. table_name and
// relevance_score are internal selected columns, stripped out of Row
// before matched_columns is derived from the remaining truthy values.
func scanResults(rows *sql.Rows, connectionID, query string) ([]models.SearchResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []models.SearchResult
	for rows.Next() {
		vals := make([]sql.RawBytes, len(cols))
		scanArgs := make([]interface{}, len(cols))
		for i := range vals {
			scanArgs[i] = &vals[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}

		var tableName string
		var score float64
		row := make(map[string]interface{}, len(cols))
		var dataCols []string
		for i, col := range cols {
			switch col {
			case "relevance_score":
				score = parseFloat(string(vals[i]))
			case "table_name":
				tableName = string(vals[i])
			default:
				row[col] = string(vals[i])
				dataCols = append(dataCols, col)
			}
		}

		var matched []string
		for _, col := range dataCols {
			if v, _ := row[col].(string); v != "" {
				matched = append(matched, col)
			}
		}

		primaryKey := ""
		if v, ok := row["id"]; ok {
			primaryKey = fmt.Sprintf("%v", v)
		}

		out = append(out, models.SearchResult{
			ConnectionID:   connectionID,
			Table:          tableName,
			PrimaryKey:     primaryKey,
			Score:          score,
			Snippet:        buildSnippet(dataCols, row, query),
			Row:            row,
			MatchedColumns: matched,
		})
	}
	return out, rows.Err()
}

// buildSnippet implements the term-aware extraction algorithm (§4.5): the
// first candidate field long enough to contain a real window around a
// matched search term, falling back to a bare truncation of the first
// merely-non-trivial field.
func buildSnippet(cols []string, row map[string]interface{}, query string) string {
	terms := strings.Fields(strings.ToLower(query))
	for _, col := range cols {
		s, _ := row[col].(string)
		if len(s) < 50 {
			continue
		}
		lower := strings.ToLower(s)
		for _, term := range terms {
			if term == "" {
				continue
			}
			idx := strings.Index(lower, term)
			if idx < 0 {
				continue
			}
			start := idx - 50
			if start < 0 {
				start = 0
			}
			end := idx + len(term) + 50
			if end > len(s) {
				end = len(s)
			}
			return "..." + s[start:end] + "..."
		}
	}
	for _, col := range cols {
		s, _ := row[col].(string)
		if len(s) < 20 {
			continue
		}
		if len(s) > 100 {
			return s[:100]
		}
		return s
	}
	return ""
}

func parseFloat(s string) float64 {
	var f float64
	_, _ = fmt.Sscanf(s, "%f", &f)
	return f
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = fmt.Sprintf("`%s`", c)
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func rankAndSort(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// paginate applies limit/offset over the merged, ranked result set.
func paginate(results []models.SearchResult, limit, offset int) []models.SearchResult {
	if offset >= len(results) {
		return []models.SearchResult{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

package cache

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// searchKeyFields is the normalised shape hashed into a search cache key.
// Every field that changes which rows fan-out can return must appear here;
// omitting one causes distinct requests to collide on one cache entry.
type searchKeyFields struct {
	Query      string   `json:"query"`
	Databases  []string `json:"databases"`
	Tables     []string `json:"tables"`
	Columns    []string `json:"columns"`
	SearchMode string   `json:"search_mode"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

// SearchKey builds the deterministic cache key for a search request: a
// base64-encoded, normalised JSON document over the query, the sorted
// connection/table/column sets, the search mode, and pagination. Two
// requests that differ in any of these fields never collide.
func SearchKey(connectionIDs, tables, columns []string, query, searchMode string, limit, offset int) string {
	fields := searchKeyFields{
		Query:      query,
		Databases:  sortedCopy(connectionIDs),
		Tables:     sortedCopy(tables),
		Columns:    sortedCopy(columns),
		SearchMode: searchMode,
		Limit:      limit,
		Offset:     offset,
	}
	encoded, _ := json.Marshal(fields)
	return fmt.Sprintf("search:%s", base64.RawURLEncoding.EncodeToString(encoded))
}

// SchemaKey builds the cache key for a connection's discovered schema.
func SchemaKey(connectionID string) string {
	return fmt.Sprintf("schema:%s", connectionID)
}

// RateLimitKey builds the per-minute window counter key for a given subject
// (user or API key ID) and window start bucket.
func RateLimitKey(subjectID string, windowBucket int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", subjectID, windowBucket)
}

// AnalyticsKey namespaces a cached analytics aggregate by user and kind.
func AnalyticsKey(userID, kind string) string {
	return fmt.Sprintf("analytics:%s:%s", userID, kind)
}

// Package models defines the domain types shared across the metadata
// store, search orchestrator, and HTTP layer.
package models

import "time"

// UserRole distinguishes ordinary tenant users from administrators.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User is a registered tenant account.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Tier         string     `json:"tier"`
	Role         UserRole   `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// APIKeyEnvironment mirrors crypto.APIKeyEnvironment for storage.
type APIKeyEnvironment string

const (
	APIKeyEnvLive APIKeyEnvironment = "live"
	APIKeyEnvTest APIKeyEnvironment = "test"
)

// Permission names a single capability an API key may be granted. The set
// is closed: search, analytics, admin.
type Permission string

const (
	PermissionSearch    Permission = "search"
	PermissionAnalytics Permission = "analytics"
	PermissionAdmin     Permission = "admin"
)

// APIKey is a data-plane credential issued to a user (C9). Permissions is
// a subset of {search, analytics, admin}; admin implies every other
// permission at authorization time.
type APIKey struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Name        string            `json:"name"`
	KeyPrefix   string            `json:"key_prefix"`
	KeyHash     string            `json:"-"`
	Environment APIKeyEnvironment `json:"environment"`
	Tier        string            `json:"tier"`
	Permissions []Permission      `json:"permissions"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time        `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time        `json:"revoked_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ConnectionStatus is the lifecycle state of a registered database
// connection (C3).
type ConnectionStatus string

const (
	ConnectionStatusPending ConnectionStatus = "pending"
	ConnectionStatusActive  ConnectionStatus = "active"
	ConnectionStatusFailed  ConnectionStatus = "failed"
)

// DBConnection is a tenant-registered MySQL-compatible database (C2/C3).
// PasswordEncrypted holds the AES-256-GCM ciphertext produced by C1;
// plaintext credentials are never persisted.
type DBConnection struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	Name              string           `json:"name"`
	Host              string           `json:"host"`
	Port              int              `json:"port"`
	Username          string           `json:"username"`
	PasswordEncrypted string           `json:"-"`
	DatabaseName      string           `json:"database_name"`
	Status            ConnectionStatus `json:"status"`
	LastTestedAt      *time.Time       `json:"last_tested_at,omitempty"`
	LastError         string           `json:"last_error,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// ColumnSchema describes one column of a discovered table (C4).
type ColumnSchema struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsSearchable bool   `json:"is_searchable"`
	HasFullText  bool   `json:"has_fulltext"`
}

// TableSchema describes one discovered table and its FULLTEXT-eligible
// columns (C4).
type TableSchema struct {
	ConnectionID    string         `json:"connection_id"`
	TableName       string         `json:"table_name"`
	Columns         []ColumnSchema `json:"columns"`
	FullTextColumns []string       `json:"fulltext_columns"`
	EstimatedRows   int64          `json:"estimated_rows"`
	DiscoveredAt    time.Time      `json:"discovered_at"`
}

// SearchMode selects between literal term matching and AI-assisted query
// rewriting ahead of fan-out.
type SearchMode string

const (
	SearchModeNatural  SearchMode = "natural"
	SearchModeSemantic SearchMode = "semantic"
)

// SearchRequest is the parsed, validated input to the orchestrator (C5).
type SearchRequest struct {
	UserID           string     `json:"-"`
	ConnectionIDs    []string   `json:"connection_ids"`
	Query            string     `json:"query"`
	Tables           []string   `json:"tables,omitempty"`
	Columns          []string   `json:"columns,omitempty"`
	SearchMode       SearchMode `json:"search_mode,omitempty"`
	Limit            int        `json:"limit"`
	Offset           int        `json:"offset"`
	IncludeAnalytics bool       `json:"include_analytics,omitempty"`
}

// SearchResult is a single matched row, enriched with a snippet and score.
// MatchedColumns is always a subset of Row's keys plus, when Snippet is
// non-empty, "snippet".
type SearchResult struct {
	ConnectionID   string                 `json:"connection_id"`
	Table          string                 `json:"table"`
	PrimaryKey     string                 `json:"primary_key"`
	Score          float64                `json:"score"`
	Snippet        string                 `json:"snippet"`
	Row            map[string]interface{} `json:"row"`
	MatchedColumns []string               `json:"matched_columns"`
	Categories     []string               `json:"categories,omitempty"`
}

// OptimizationHint is one deterministic- or AI-derived suggestion attached
// to a search response.
type OptimizationHint struct {
	Type    string `json:"type"`
	Impact  string `json:"impact"`
	Message string `json:"message"`
}

// SearchResponse is the full, paginated outcome of a search (C5). Page is
// derived as floor(offset/limit)+1, never taken from the request directly.
type SearchResponse struct {
	Query             string             `json:"query"`
	RewrittenQuery    string             `json:"rewritten_query,omitempty"`
	Results           []SearchResult     `json:"results"`
	TotalCount        int                `json:"total_count"`
	Page              int                `json:"page"`
	Limit             int                `json:"limit"`
	ExecutionTimeMs   int64              `json:"execution_time_ms"`
	UsedCache         bool               `json:"used_cache"`
	UsedAI            bool               `json:"used_ai"`
	Suggestions       []string           `json:"suggestions,omitempty"`
	Categories        []string           `json:"categories,omitempty"`
	Trends            []TimeSeriesPoint  `json:"trends,omitempty"`
	QueryOptimization []OptimizationHint `json:"query_optimization,omitempty"`
}

// TimeSeriesPoint is one bucket of the search-volume-over-time aggregate,
// attached to a search response when include_analytics is requested.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// AnalyticsEvent records one completed search for later aggregation (C7).
type AnalyticsEvent struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ConnectionID    string    `json:"connection_id"`
	QueryText       string    `json:"query_text"`
	ResultCount     int       `json:"result_count"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	UsedCache       bool      `json:"used_cache"`
	UsedAI          bool      `json:"used_ai"`
	CreatedAt       time.Time `json:"created_at"`
}

// Package repository implements the metadata store's data access layer
// (C2) as narrow interfaces, each backed by MySQL via database/sql.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/altus4/core/internal/models"
)

// UserRepository defines methods for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// APIKeyRepository defines methods for API key data access.
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByID(ctx context.Context, id string) (*models.APIKey, error)
	GetByKeyHash(ctx context.Context, hash string) (*models.APIKey, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.APIKey, error)
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, id string) error
}

// ConnectionRepository defines methods for registered database connection
// metadata access.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *models.DBConnection) error
	GetByID(ctx context.Context, id string) (*models.DBConnection, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.DBConnection, error)
	Update(ctx context.Context, conn *models.DBConnection) error
	UpdateStatus(ctx context.Context, id string, status models.ConnectionStatus, testErr string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// AnalyticsRepository defines methods for search-analytics data access and
// the derived aggregate queries behind C7.
type AnalyticsRepository interface {
	Create(ctx context.Context, event *models.AnalyticsEvent) error
	PopularQueries(ctx context.Context, userID string, since time.Time, limit int) ([]PopularQuery, error)
	PerformanceSummary(ctx context.Context, userID string, since time.Time) (PerformanceSummary, error)
	TimeSeries(ctx context.Context, userID string, since time.Time) ([]TimeSeriesPoint, error)
	History(ctx context.Context, userID string, limit, offset int) ([]*models.AnalyticsEvent, error)
	SlowestQueries(ctx context.Context, userID string, since time.Time, limit int) ([]*models.AnalyticsEvent, error)
}

// PopularQuery is one row of the "most frequent search terms" aggregate.
type PopularQuery struct {
	QueryText string `json:"query_text"`
	Count     int    `json:"count"`
}

// PerformanceSummary aggregates execution characteristics over a window.
type PerformanceSummary struct {
	TotalSearches   int     `json:"total_searches"`
	AvgExecutionMs  float64 `json:"avg_execution_time_ms"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
	AIUsageRate     float64 `json:"ai_usage_rate"`
}

// TimeSeriesPoint is one bucket of the search-volume-over-time aggregate.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Repositories bundles every repository instance behind the metadata
// store's *sql.DB handle.
type Repositories struct {
	User       UserRepository
	APIKey     APIKeyRepository
	Connection ConnectionRepository
	Analytics  AnalyticsRepository
}

// NewRepositories wires every repository to the same *sql.DB.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		User:       NewMySQLUserRepository(db),
		APIKey:     NewMySQLAPIKeyRepository(db),
		Connection: NewMySQLConnectionRepository(db),
		Analytics:  NewMySQLAnalyticsRepository(db),
	}
}

// nullString converts an empty string to a SQL NULL so optional text
// columns round-trip cleanly.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a nil time pointer to a SQL NULL.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}

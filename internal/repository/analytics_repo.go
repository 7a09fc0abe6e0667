package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/altus4/core/internal/models"
)

// MySQLAnalyticsRepository implements AnalyticsRepository against MySQL.
type MySQLAnalyticsRepository struct {
	db *sql.DB
}

func NewMySQLAnalyticsRepository(db *sql.DB) *MySQLAnalyticsRepository {
	return &MySQLAnalyticsRepository{db: db}
}

func (r *MySQLAnalyticsRepository) Create(ctx context.Context, event *models.AnalyticsEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO search_analytics
			(id, user_id, connection_id, query_text, result_count, execution_time_ms, used_cache, used_ai, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.UserID, event.ConnectionID, event.QueryText, event.ResultCount,
		event.ExecutionTimeMs, event.UsedCache, event.UsedAI, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("create analytics event: %w", err)
	}
	return nil
}

func (r *MySQLAnalyticsRepository) PopularQueries(ctx context.Context, userID string, since time.Time, limit int) ([]PopularQuery, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT query_text, COUNT(*) AS cnt
		FROM search_analytics
		WHERE user_id = ? AND created_at >= ?
		GROUP BY query_text
		ORDER BY cnt DESC
		LIMIT ?`, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PopularQuery
	for rows.Next() {
		var p PopularQuery
		if err := rows.Scan(&p.QueryText, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *MySQLAnalyticsRepository) PerformanceSummary(ctx context.Context, userID string, since time.Time) (PerformanceSummary, error) {
	var summary PerformanceSummary
	var avgMs sql.NullFloat64
	var cacheHits, aiUses sql.NullFloat64

	row := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(execution_time_ms),
			AVG(used_cache),
			AVG(used_ai)
		FROM search_analytics
		WHERE user_id = ? AND created_at >= ?`, userID, since)

	if err := row.Scan(&summary.TotalSearches, &avgMs, &cacheHits, &aiUses); err != nil {
		return PerformanceSummary{}, err
	}

	summary.AvgExecutionMs = avgMs.Float64
	summary.CacheHitRate = cacheHits.Float64
	summary.AIUsageRate = aiUses.Float64
	return summary, nil
}

func (r *MySQLAnalyticsRepository) TimeSeries(ctx context.Context, userID string, since time.Time) ([]TimeSeriesPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DATE(created_at) AS d, COUNT(*)
		FROM search_analytics
		WHERE user_id = ? AND created_at >= ?
		GROUP BY d
		ORDER BY d ASC`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeSeriesPoint
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const analyticsEventSelectCols = `id, user_id, connection_id, query_text, result_count, execution_time_ms, used_cache, used_ai, created_at`

func scanAnalyticsEvent(scan func(dest ...interface{}) error) (*models.AnalyticsEvent, error) {
	var e models.AnalyticsEvent
	if err := scan(&e.ID, &e.UserID, &e.ConnectionID, &e.QueryText, &e.ResultCount,
		&e.ExecutionTimeMs, &e.UsedCache, &e.UsedAI, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *MySQLAnalyticsRepository) History(ctx context.Context, userID string, limit, offset int) ([]*models.AnalyticsEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+analyticsEventSelectCols+`
		FROM search_analytics
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AnalyticsEvent
	for rows.Next() {
		e, err := scanAnalyticsEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *MySQLAnalyticsRepository) SlowestQueries(ctx context.Context, userID string, since time.Time, limit int) ([]*models.AnalyticsEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+analyticsEventSelectCols+`
		FROM search_analytics
		WHERE user_id = ? AND created_at >= ?
		ORDER BY execution_time_ms DESC
		LIMIT ?`, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AnalyticsEvent
	for rows.Next() {
		e, err := scanAnalyticsEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

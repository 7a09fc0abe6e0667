// Package analytics implements the Analytics Aggregator (C7): a thin
// service over the analytics repository's aggregate queries, with
// short-TTL cached reads through the shared Redis store.
package analytics

import (
	"context"
	"time"

	"github.com/altus4/core/internal/cache"
	"github.com/altus4/core/internal/constants"
	"github.com/altus4/core/internal/models"
	"github.com/altus4/core/internal/repository"
)

// Service reads and writes search-analytics data for a tenant user.
type Service struct {
	repo  repository.AnalyticsRepository
	cache *cache.Store
}

// New builds a Service backed by repo, with reads cached through store.
func New(repo repository.AnalyticsRepository, store *cache.Store) *Service {
	return &Service{repo: repo, cache: store}
}

// RecordSearch appends one completed search as an analytics event. Called
// by the orchestrator (C5) after every search, regardless of result count.
func (s *Service) RecordSearch(ctx context.Context, event *models.AnalyticsEvent) error {
	return s.repo.Create(ctx, event)
}

// PopularQueries returns the userID's most frequent search terms since
// since, cached for constants.AnalyticsCacheTTL.
func (s *Service) PopularQueries(ctx context.Context, userID string, since time.Time, limit int) ([]repository.PopularQuery, error) {
	key := cache.AnalyticsKey(userID, "popular")
	var cached []repository.PopularQuery
	if found, _ := s.cache.Get(ctx, key, &cached); found {
		return cached, nil
	}

	result, err := s.repo.PopularQueries(ctx, userID, since, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, result, constants.AnalyticsCacheTTL)
	return result, nil
}

// PerformanceSummary returns aggregate execution characteristics for
// userID since since, cached for constants.AnalyticsCacheTTL.
func (s *Service) PerformanceSummary(ctx context.Context, userID string, since time.Time) (repository.PerformanceSummary, error) {
	key := cache.AnalyticsKey(userID, "performance")
	var cached repository.PerformanceSummary
	if found, _ := s.cache.Get(ctx, key, &cached); found {
		return cached, nil
	}

	result, err := s.repo.PerformanceSummary(ctx, userID, since)
	if err != nil {
		return repository.PerformanceSummary{}, err
	}
	s.cache.Set(ctx, key, result, constants.AnalyticsCacheTTL)
	return result, nil
}

// TimeSeries returns daily search-volume buckets for userID since since,
// cached for constants.AnalyticsCacheTTL.
func (s *Service) TimeSeries(ctx context.Context, userID string, since time.Time) ([]repository.TimeSeriesPoint, error) {
	key := cache.AnalyticsKey(userID, "timeseries")
	var cached []repository.TimeSeriesPoint
	if found, _ := s.cache.Get(ctx, key, &cached); found {
		return cached, nil
	}

	result, err := s.repo.TimeSeries(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, result, constants.AnalyticsCacheTTL)
	return result, nil
}

// History returns a page of raw analytics events for userID. History is
// not cached: it is paginated and rarely re-read identically.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]*models.AnalyticsEvent, error) {
	return s.repo.History(ctx, userID, limit, offset)
}

// SlowestQueries returns userID's slowest searches since since, uncached
// for the same reason as History.
func (s *Service) SlowestQueries(ctx context.Context, userID string, since time.Time, limit int) ([]*models.AnalyticsEvent, error) {
	return s.repo.SlowestQueries(ctx, userID, since, limit)
}

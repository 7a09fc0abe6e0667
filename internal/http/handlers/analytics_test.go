package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/altus4/core/internal/analytics"
	"github.com/altus4/core/internal/auth"
	"github.com/altus4/core/internal/cache"
	"github.com/altus4/core/internal/models"
	"github.com/altus4/core/internal/repository"
)

type fakeAnalyticsRepo struct {
	events        []*models.AnalyticsEvent
	popular       []repository.PopularQuery
	historyLimit  int
	historyOffset int
}

func (f *fakeAnalyticsRepo) Create(ctx context.Context, event *models.AnalyticsEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAnalyticsRepo) PopularQueries(ctx context.Context, userID string, since time.Time, limit int) ([]repository.PopularQuery, error) {
	return f.popular, nil
}

func (f *fakeAnalyticsRepo) PerformanceSummary(ctx context.Context, userID string, since time.Time) (repository.PerformanceSummary, error) {
	return repository.PerformanceSummary{}, nil
}

func (f *fakeAnalyticsRepo) TimeSeries(ctx context.Context, userID string, since time.Time) ([]repository.TimeSeriesPoint, error) {
	return nil, nil
}

func (f *fakeAnalyticsRepo) History(ctx context.Context, userID string, limit, offset int) ([]*models.AnalyticsEvent, error) {
	f.historyLimit, f.historyOffset = limit, offset
	return f.events, nil
}

func (f *fakeAnalyticsRepo) SlowestQueries(ctx context.Context, userID string, since time.Time, limit int) ([]*models.AnalyticsEvent, error) {
	return f.events, nil
}

func newTestAnalyticsHandler(t *testing.T, repo *fakeAnalyticsRepo) *AnalyticsHandler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cache.NewWithClient(client, nil)
	return NewAnalyticsHandler(analytics.New(repo, store))
}

func TestPopularReturnsAggregatedQueries(t *testing.T) {
	repo := &fakeAnalyticsRepo{popular: []repository.PopularQuery{{QueryText: "widgets", Count: 9}}}
	h := newTestAnalyticsHandler(t, repo)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/v1/analytics/popular", nil), &auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()

	h.Popular(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		Data []repository.PopularQuery `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].QueryText != "widgets" {
		t.Errorf("unexpected popular queries: %+v", resp.Data)
	}
}

func TestHistoryRespectsLimitAndOffsetParams(t *testing.T) {
	repo := &fakeAnalyticsRepo{events: []*models.AnalyticsEvent{{ID: "e1", UserID: "u1", QueryText: "widgets"}}}
	h := newTestAnalyticsHandler(t, repo)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/v1/analytics/history?limit=5&offset=0", nil), &auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()

	h.History(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if repo.historyLimit != 5 || repo.historyOffset != 0 {
		t.Errorf("History() called with limit=%d offset=%d, want limit=5 offset=0", repo.historyLimit, repo.historyOffset)
	}
}

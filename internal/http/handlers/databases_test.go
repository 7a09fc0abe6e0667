package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/altus4/core/internal/auth"
	"github.com/altus4/core/internal/models"
)

type fakeConnectionRepo struct {
	mu   sync.Mutex
	byID map[string]*models.DBConnection
}

func newFakeConnectionRepo() *fakeConnectionRepo {
	return &fakeConnectionRepo{byID: map[string]*models.DBConnection{}}
}

func (f *fakeConnectionRepo) Create(ctx context.Context, conn *models.DBConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[conn.ID] = conn
	return nil
}

func (f *fakeConnectionRepo) GetByID(ctx context.Context, id string) (*models.DBConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, errFakeNotFound
	}
	return c, nil
}

func (f *fakeConnectionRepo) GetByUserID(ctx context.Context, userID string) ([]*models.DBConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DBConnection
	for _, c := range f.byID {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConnectionRepo) Update(ctx context.Context, conn *models.DBConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[conn.ID] = conn
	return nil
}

func (f *fakeConnectionRepo) UpdateStatus(ctx context.Context, id string, status models.ConnectionStatus, testErr string, at time.Time) error {
	return nil
}

func (f *fakeConnectionRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func withRouteParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestListDatabasesScopesToCaller(t *testing.T) {
	repo := newFakeConnectionRepo()
	repo.byID["c1"] = &models.DBConnection{ID: "c1", UserID: "u1", Name: "primary"}
	repo.byID["c2"] = &models.DBConnection{ID: "c2", UserID: "other", Name: "theirs"}
	h := NewDatabaseHandler(repo, nil, nil)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/v1/databases", nil), &auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()

	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		Data []models.DBConnection `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "c1" {
		t.Errorf("expected only u1's connection, got %+v", resp.Data)
	}
}

func TestGetDatabaseRejectsOtherUsersConnection(t *testing.T) {
	repo := newFakeConnectionRepo()
	repo.byID["c1"] = &models.DBConnection{ID: "c1", UserID: "owner"}
	h := NewDatabaseHandler(repo, nil, nil)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/v1/databases/c1", nil), &auth.Identity{UserID: "someone-else"})
	req = withRouteParam(req, "id", "c1")
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestUpdateDatabaseAppliesPartialFields(t *testing.T) {
	repo := newFakeConnectionRepo()
	repo.byID["c1"] = &models.DBConnection{ID: "c1", UserID: "u1", Name: "old-name", Host: "old-host"}
	h := NewDatabaseHandler(repo, nil, nil)

	body, _ := json.Marshal(updateConnectionRequest{Name: "new-name"})
	req := withTestIdentity(httptest.NewRequest(http.MethodPut, "/v1/databases/c1", bytes.NewReader(body)), &auth.Identity{UserID: "u1"})
	req = withRouteParam(req, "id", "c1")
	rec := httptest.NewRecorder()

	h.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if repo.byID["c1"].Name != "new-name" || repo.byID["c1"].Host != "old-host" {
		t.Errorf("expected partial update, got %+v", repo.byID["c1"])
	}
}

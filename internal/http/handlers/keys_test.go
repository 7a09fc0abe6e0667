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
	"github.com/altus4/core/internal/http/mw"
	"github.com/altus4/core/internal/models"
)

type fakeAPIKeyRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.APIKey
	byHash map[string]*models.APIKey
}

func newFakeAPIKeyRepo() *fakeAPIKeyRepo {
	return &fakeAPIKeyRepo{byID: map[string]*models.APIKey{}, byHash: map[string]*models.APIKey{}}
}

func (f *fakeAPIKeyRepo) Create(ctx context.Context, key *models.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[key.ID] = key
	f.byHash[key.KeyHash] = key
	return nil
}

func (f *fakeAPIKeyRepo) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.byID[id]
	if !ok {
		return nil, errFakeNotFound
	}
	return k, nil
}

func (f *fakeAPIKeyRepo) GetByKeyHash(ctx context.Context, hash string) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.byHash[hash]
	if !ok {
		return nil, errFakeNotFound
	}
	return k, nil
}

func (f *fakeAPIKeyRepo) GetByUserID(ctx context.Context, userID string) ([]*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.APIKey
	for _, k := range f.byID {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeAPIKeyRepo) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (f *fakeAPIKeyRepo) Revoke(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if k, ok := f.byID[id]; ok {
		now := time.Now()
		k.RevokedAt = &now
	}
	return nil
}

func withTestIdentity(r *http.Request, identity *auth.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), mw.ContextKey("identity"), identity))
}

func TestCreateKeyMintsKeyWithPlaintext(t *testing.T) {
	repo := newFakeAPIKeyRepo()
	h := NewKeyHandler(repo)

	body, _ := json.Marshal(createKeyRequest{Name: "ci", Environment: "live"})
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/v1/keys", bytes.NewReader(body)), &auth.Identity{UserID: "u1", Tier: "pro"})
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp struct {
		Data createKeyResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.PlainText == "" {
		t.Error("expected a plaintext key in the response")
	}
}

func TestGetKeyRejectsOtherUsersKey(t *testing.T) {
	repo := newFakeAPIKeyRepo()
	repo.byID["k1"] = &models.APIKey{ID: "k1", UserID: "owner"}
	h := NewKeyHandler(repo)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/v1/keys/k1", nil), &auth.Identity{UserID: "someone-else"})
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "k1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

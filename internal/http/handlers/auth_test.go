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

	"github.com/altus4/core/internal/auth"
	"github.com/altus4/core/internal/http/mw"
	"github.com/altus4/core/internal/models"
)

type fakeUserRepo struct {
	mu       sync.Mutex
	byID     map[string]*models.User
	byEmail  map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*models.User{}, byEmail: map[string]*models.User{}}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, errFakeNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errFakeNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func newTestAuthHandler() (*AuthHandler, *auth.Authenticator, *fakeUserRepo) {
	authenticator := auth.New("test-secret-at-least-32-bytes-long", time.Hour, nil)
	repo := newFakeUserRepo()
	return NewAuthHandler(repo, authenticator), authenticator, repo
}

func TestRegisterCreatesUser(t *testing.T) {
	h, _, _ := newTestAuthHandler()
	body, _ := json.Marshal(registerRequest{Email: "a@example.com", Password: "hunter2hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	h, _, repo := newTestAuthHandler()
	repo.byEmail["a@example.com"] = &models.User{ID: "u1", Email: "a@example.com"}

	body, _ := json.Marshal(registerRequest{Email: "a@example.com", Password: "hunter2hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	h, _, repo := newTestAuthHandler()
	repo.byEmail["a@example.com"] = &models.User{ID: "u1", Email: "a@example.com", PasswordHash: "$2a$10$invalidhashvalueinvalidhashvalueinvalidhash"}

	body, _ := json.Marshal(loginRequest{Email: "a@example.com", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestProfileReturnsAuthenticatedUser(t *testing.T) {
	h, _, repo := newTestAuthHandler()
	repo.byID["u1"] = &models.User{ID: "u1", Email: "a@example.com"}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/profile", nil)
	ctx := context.WithValue(req.Context(), mw.ContextKey("identity"), &auth.Identity{UserID: "u1"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	h.Profile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

var errFakeNotFound = fakeNotFoundError{}

type fakeNotFoundError struct{}

func (fakeNotFoundError) Error() string { return "not found" }

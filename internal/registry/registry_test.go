package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/altus4/core/internal/crypto"
	"github.com/altus4/core/internal/models"
)

var errNotFound = errors.New("not found")

type fakeConnectionRepo struct {
	mu    sync.Mutex
	byID  map[string]*models.DBConnection
}

func newFakeConnectionRepo() *fakeConnectionRepo {
	return &fakeConnectionRepo{byID: make(map[string]*models.DBConnection)}
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
		return nil, errNotFound
	}
	copy := *c
	return &copy, nil
}

func (f *fakeConnectionRepo) GetByUserID(ctx context.Context, userID string) ([]*models.DBConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DBConnection
	for _, c := range f.byID {
		if c.UserID == userID {
			copy := *c
			out = append(out, &copy)
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
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[id]; ok {
		c.Status = status
		c.LastError = testErr
		c.LastTestedAt = &at
	}
	return nil
}

func (f *fakeConnectionRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeConnectionRepo) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	repo := newFakeConnectionRepo()
	return New(repo, enc, 200*time.Millisecond, time.Second, nil), repo
}

func TestAddConnectionEncryptsPassword(t *testing.T) {
	reg, repo := newTestRegistry(t)

	conn := &models.DBConnection{ID: "conn-1", UserID: "user-1", Name: "unreachable", Host: "127.0.0.1", Port: 1, DatabaseName: "db"}
	_ = reg.AddConnection(context.Background(), conn, "s3cret")

	stored, err := repo.GetByID(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.PasswordEncrypted == "" || stored.PasswordEncrypted == "s3cret" {
		t.Error("password should be encrypted before persisting")
	}
}

func TestGetConnectionFailsForUnreachableHost(t *testing.T) {
	reg, repo := newTestRegistry(t)

	conn := &models.DBConnection{ID: "conn-1", UserID: "user-1", Name: "unreachable", Host: "127.0.0.1", Port: 1, DatabaseName: "db"}
	_ = repo.Create(context.Background(), conn)
	conn.PasswordEncrypted, _ = reg.encryptor.Encrypt("s3cret")

	_, err := reg.GetConnection(context.Background(), "conn-1")
	if err == nil {
		t.Fatal("GetConnection() should fail for an unreachable host")
	}
}

func TestGetConnectionStatuses(t *testing.T) {
	reg, repo := newTestRegistry(t)
	_ = repo.Create(context.Background(), &models.DBConnection{ID: "conn-1", UserID: "user-1", Status: models.ConnectionStatusPending})
	_ = repo.Create(context.Background(), &models.DBConnection{ID: "conn-2", UserID: "user-1", Status: models.ConnectionStatusActive})

	statuses, err := reg.GetConnectionStatuses(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetConnectionStatuses() error = %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
}

func TestRemoveConnection(t *testing.T) {
	reg, repo := newTestRegistry(t)
	_ = repo.Create(context.Background(), &models.DBConnection{ID: "conn-1", UserID: "user-1"})

	if err := reg.RemoveConnection(context.Background(), "conn-1"); err != nil {
		t.Fatalf("RemoveConnection() error = %v", err)
	}
	if _, err := repo.GetByID(context.Background(), "conn-1"); err == nil {
		t.Error("connection should be gone after RemoveConnection")
	}
}

// Package registry implements the Connection Registry (C3): a bounded,
// single-flight-hydrated pool of *sql.DB handles over tenant-registered
// MySQL-compatible databases.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/altus4/core/internal/apperrors"
	"github.com/altus4/core/internal/crypto"
	"github.com/altus4/core/internal/database"
	"github.com/altus4/core/internal/models"
	"github.com/altus4/core/internal/repository"
)

// Registry hydrates and hands out pooled *sql.DB connections for
// registered tenant databases, coalescing concurrent hydration attempts
// for the same connection ID.
type Registry struct {
	repo       repository.ConnectionRepository
	encryptor  *crypto.Encryptor
	logger     *slog.Logger
	connectTO  time.Duration
	acquireTO  time.Duration

	mu    sync.RWMutex
	pools map[string]*sql.DB

	group singleflight.Group
}

// New builds a Registry backed by repo for metadata and encryptor for
// decrypting stored credentials.
func New(repo repository.ConnectionRepository, encryptor *crypto.Encryptor, connectTimeout, acquireTimeout time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		repo:      repo,
		encryptor: encryptor,
		logger:    logger,
		connectTO: connectTimeout,
		acquireTO: acquireTimeout,
		pools:     make(map[string]*sql.DB),
	}
}

// AddConnection persists a new tenant connection (with its password
// encrypted at rest) and attempts an initial hydration.
func (r *Registry) AddConnection(ctx context.Context, conn *models.DBConnection, plaintextPassword string) error {
	encrypted, err := r.encryptor.Encrypt(plaintextPassword)
	if err != nil {
		return apperrors.Internal(fmt.Errorf("encrypt connection password: %w", err))
	}
	conn.PasswordEncrypted = encrypted
	conn.Status = models.ConnectionStatusPending

	if err := r.repo.Create(ctx, conn); err != nil {
		return apperrors.Internal(fmt.Errorf("persist connection: %w", err))
	}

	if err := r.TestConnection(ctx, conn.ID); err != nil {
		r.logger.Warn("initial connection test failed", "connection_id", conn.ID, "error", err)
	}
	return nil
}

// GetConnection returns a pooled, hydrated *sql.DB for connectionID,
// hydrating it on first use. Concurrent callers for the same ID share a
// single hydration attempt.
func (r *Registry) GetConnection(ctx context.Context, connectionID string) (*sql.DB, error) {
	r.mu.RLock()
	if db, ok := r.pools[connectionID]; ok {
		r.mu.RUnlock()
		return db, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.group.Do(connectionID, func() (interface{}, error) {
		return r.hydrate(ctx, connectionID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*sql.DB), nil
}

func (r *Registry) hydrate(ctx context.Context, connectionID string) (*sql.DB, error) {
	r.mu.RLock()
	if db, ok := r.pools[connectionID]; ok {
		r.mu.RUnlock()
		return db, nil
	}
	r.mu.RUnlock()

	conn, err := r.repo.GetByID(ctx, connectionID)
	if err != nil {
		return nil, apperrors.NotFound("database connection")
	}

	password, err := r.encryptor.Decrypt(conn.PasswordEncrypted)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("decrypt connection password: %w", err))
	}

	db, err := database.OpenTenantConnection(conn.Host, conn.Port, conn.Username, password, conn.DatabaseName, r.connectTO)
	if err != nil {
		return nil, apperrors.ConnectionFailed(err, conn.Name)
	}

	pingCtx, cancel := context.WithTimeout(ctx, r.connectTO)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.ConnectionFailed(err, conn.Name)
	}

	r.mu.Lock()
	r.pools[connectionID] = db
	r.mu.Unlock()

	return db, nil
}

// RemoveConnection closes and forgets the pool for connectionID, and
// deletes its metadata.
func (r *Registry) RemoveConnection(ctx context.Context, connectionID string) error {
	r.mu.Lock()
	if db, ok := r.pools[connectionID]; ok {
		db.Close()
		delete(r.pools, connectionID)
	}
	r.mu.Unlock()

	return r.repo.Delete(ctx, connectionID)
}

// TestConnection verifies connectivity for connectionID and records the
// outcome in metadata.
func (r *Registry) TestConnection(ctx context.Context, connectionID string) error {
	db, err := r.GetConnection(ctx, connectionID)
	now := time.Now()
	if err != nil {
		_ = r.repo.UpdateStatus(ctx, connectionID, models.ConnectionStatusFailed, err.Error(), now)
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, r.connectTO)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = r.repo.UpdateStatus(ctx, connectionID, models.ConnectionStatusFailed, err.Error(), now)
		return apperrors.ConnectionFailed(err, connectionID)
	}

	return r.repo.UpdateStatus(ctx, connectionID, models.ConnectionStatusActive, "", now)
}

// ConnectionStatusInfo summarises one registered connection's live state
// for GetConnectionStatuses.
type ConnectionStatusInfo struct {
	ConnectionID string
	Status       models.ConnectionStatus
	Pooled       bool
}

// GetConnectionStatuses reports live pooling state for every connection
// belonging to userID, merged with the persisted status.
func (r *Registry) GetConnectionStatuses(ctx context.Context, userID string) ([]ConnectionStatusInfo, error) {
	conns, err := r.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnectionStatusInfo, 0, len(conns))
	for _, c := range conns {
		_, pooled := r.pools[c.ID]
		out = append(out, ConnectionStatusInfo{ConnectionID: c.ID, Status: c.Status, Pooled: pooled})
	}
	return out, nil
}

// Close closes every pooled connection, used on server shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, db := range r.pools {
		db.Close()
		delete(r.pools, id)
	}
}

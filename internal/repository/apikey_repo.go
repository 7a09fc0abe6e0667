package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/altus4/core/internal/models"
)

// MySQLAPIKeyRepository implements APIKeyRepository against MySQL.
type MySQLAPIKeyRepository struct {
	db *sql.DB
}

func NewMySQLAPIKeyRepository(db *sql.DB) *MySQLAPIKeyRepository {
	return &MySQLAPIKeyRepository{db: db}
}

// joinPermissions stores a permission set as a comma-joined column value;
// MySQL has no native array type and the set is always small and closed.
func joinPermissions(perms []models.Permission) string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return strings.Join(out, ",")
}

func splitPermissions(s string) []models.Permission {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]models.Permission, len(parts))
	for i, p := range parts {
		out[i] = models.Permission(p)
	}
	return out
}

func (r *MySQLAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, key_prefix, key_hash, environment, tier, permissions, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.UserID, key.Name, key.KeyPrefix, key.KeyHash, key.Environment, key.Tier,
		joinPermissions(key.Permissions), nullTime(key.ExpiresAt), key.CreatedAt)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (r *MySQLAPIKeyRepository) scanKey(row *sql.Row) (*models.APIKey, error) {
	var k models.APIKey
	var perms string
	var expires, lastUsed, revoked sql.NullTime
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyPrefix, &k.KeyHash, &k.Environment, &k.Tier, &perms,
		&expires, &lastUsed, &revoked, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	k.Permissions = splitPermissions(perms)
	k.ExpiresAt = fromNullTime(expires)
	k.LastUsedAt = fromNullTime(lastUsed)
	k.RevokedAt = fromNullTime(revoked)
	return &k, nil
}

const apiKeySelectCols = `id, user_id, name, key_prefix, key_hash, environment, tier, permissions, expires_at, last_used_at, revoked_at, created_at`

func (r *MySQLAPIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+apiKeySelectCols+` FROM api_keys WHERE id = ?`, id)
	return r.scanKey(row)
}

func (r *MySQLAPIKeyRepository) GetByKeyHash(ctx context.Context, hash string) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+apiKeySelectCols+` FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL`, hash)
	return r.scanKey(row)
}

func (r *MySQLAPIKeyRepository) GetByUserID(ctx context.Context, userID string) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+apiKeySelectCols+` FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		var perms string
		var expires, lastUsed, revoked sql.NullTime
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyPrefix, &k.KeyHash, &k.Environment, &k.Tier, &perms,
			&expires, &lastUsed, &revoked, &k.CreatedAt); err != nil {
			return nil, err
		}
		k.Permissions = splitPermissions(perms)
		k.ExpiresAt = fromNullTime(expires)
		k.LastUsedAt = fromNullTime(lastUsed)
		k.RevokedAt = fromNullTime(revoked)
		out = append(out, &k)
	}
	return out, rows.Err()
}

func (r *MySQLAPIKeyRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at, id)
	return err
}

func (r *MySQLAPIKeyRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET revoked_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

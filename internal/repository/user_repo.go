package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/altus4/core/internal/models"
)

// ErrNotFound is returned by repository lookups that find no matching row.
var ErrNotFound = errors.New("record not found")

// MySQLUserRepository implements UserRepository against MySQL.
type MySQLUserRepository struct {
	db *sql.DB
}

func NewMySQLUserRepository(db *sql.DB) *MySQLUserRepository {
	return &MySQLUserRepository{db: db}
}

func (r *MySQLUserRepository) Create(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, tier, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Tier, user.Role, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *MySQLUserRepository) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Tier, &u.Role, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.LastLoginAt = fromNullTime(lastLogin)
	return &u, nil
}

func (r *MySQLUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, tier, role, created_at, updated_at, last_login_at
		FROM users WHERE id = ?`, id)
	return r.scanUser(row)
}

func (r *MySQLUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, tier, role, created_at, updated_at, last_login_at
		FROM users WHERE email = ?`, email)
	return r.scanUser(row)
}

func (r *MySQLUserRepository) Update(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET email = ?, tier = ?, role = ?, updated_at = ?
		WHERE id = ?`, user.Email, user.Tier, user.Role, time.Now(), user.ID)
	return err
}

func (r *MySQLUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, at, id)
	return err
}

func (r *MySQLUserRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

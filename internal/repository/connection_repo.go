package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/altus4/core/internal/models"
)

// MySQLConnectionRepository implements ConnectionRepository against MySQL.
type MySQLConnectionRepository struct {
	db *sql.DB
}

func NewMySQLConnectionRepository(db *sql.DB) *MySQLConnectionRepository {
	return &MySQLConnectionRepository{db: db}
}

const connectionSelectCols = `id, user_id, name, host, port, username, password_encrypted, database_name,
	status, last_tested_at, last_error, created_at, updated_at`

func (r *MySQLConnectionRepository) Create(ctx context.Context, conn *models.DBConnection) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO database_connections
			(id, user_id, name, host, port, username, password_encrypted, database_name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.UserID, conn.Name, conn.Host, conn.Port, conn.Username,
		conn.PasswordEncrypted, conn.DatabaseName, conn.Status, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create database connection: %w", err)
	}
	return nil
}

func scanConnection(scan func(dest ...interface{}) error) (*models.DBConnection, error) {
	var c models.DBConnection
	var lastTested sql.NullTime
	var lastErr sql.NullString
	err := scan(&c.ID, &c.UserID, &c.Name, &c.Host, &c.Port, &c.Username, &c.PasswordEncrypted,
		&c.DatabaseName, &c.Status, &lastTested, &lastErr, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.LastTestedAt = fromNullTime(lastTested)
	c.LastError = lastErr.String
	return &c, nil
}

func (r *MySQLConnectionRepository) GetByID(ctx context.Context, id string) (*models.DBConnection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionSelectCols+` FROM database_connections WHERE id = ?`, id)
	return scanConnection(row.Scan)
}

func (r *MySQLConnectionRepository) GetByUserID(ctx context.Context, userID string) ([]*models.DBConnection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+connectionSelectCols+` FROM database_connections WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DBConnection
	for rows.Next() {
		c, err := scanConnection(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *MySQLConnectionRepository) Update(ctx context.Context, conn *models.DBConnection) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE database_connections
		SET name = ?, host = ?, port = ?, username = ?, password_encrypted = ?, database_name = ?, updated_at = ?
		WHERE id = ?`,
		conn.Name, conn.Host, conn.Port, conn.Username, conn.PasswordEncrypted, conn.DatabaseName, time.Now(), conn.ID)
	return err
}

func (r *MySQLConnectionRepository) UpdateStatus(ctx context.Context, id string, status models.ConnectionStatus, testErr string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE database_connections SET status = ?, last_tested_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?`, status, at, nullString(testErr), at, id)
	return err
}

func (r *MySQLConnectionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM database_connections WHERE id = ?`, id)
	return err
}

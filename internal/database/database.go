// Package database handles the metadata store connection and migrations.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/altus4/core/internal/config"
	"github.com/altus4/core/internal/database/migrations"
)

// New opens the MySQL-compatible metadata store connection described by
// cfg and configures pooling per §5's timeout budget.
func New(cfg *config.Config) (*sql.DB, error) {
	dsnCfg := mysql.NewConfig()
	dsnCfg.User = cfg.DBUsername
	dsnCfg.Passwd = cfg.DBPassword
	dsnCfg.DBName = cfg.DBDatabase
	dsnCfg.ParseTime = true
	dsnCfg.MultiStatements = true
	dsnCfg.Timeout = cfg.DBConnectTimeout()

	if cfg.DBSocket != "" {
		dsnCfg.Net = "unix"
		dsnCfg.Addr = cfg.DBSocket
	} else {
		dsnCfg.Net = "tcp"
		dsnCfg.Addr = fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort)
	}

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBPoolMax)
	db.SetMaxIdleConns(cfg.DBPoolMax)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping metadata store: %w", err)
	}

	return db, nil
}

// OpenTenantConnection opens a connection to a tenant-registered MySQL
// database (C3) from its stored, decrypted credentials.
func OpenTenantConnection(host string, port int, username, password, dbName string, connectTimeout time.Duration) (*sql.DB, error) {
	dsnCfg := mysql.NewConfig()
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = fmt.Sprintf("%s:%d", host, port)
	dsnCfg.User = username
	dsnCfg.Passwd = password
	dsnCfg.DBName = dbName
	dsnCfg.ParseTime = true
	dsnCfg.Timeout = connectTimeout

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open tenant connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// MigrateWithLogger runs pending migrations against db, logging progress.
func MigrateWithLogger(db *sql.DB, logger *slog.Logger, dir string) error {
	return migrations.Run(db, logger, dir)
}

// GetAppliedMigrations returns information about applied migrations.
func GetAppliedMigrations(db *sql.DB) ([]migrations.AppliedMigration, error) {
	return migrations.GetAppliedMigrations(db)
}

// GetLatestSchemaVersion returns the latest applied migration version.
func GetLatestSchemaVersion(db *sql.DB) (string, error) {
	return migrations.GetLatestVersion(db)
}

// GetMigrationCount returns the total number of applied migrations.
func GetMigrationCount(db *sql.DB) (int, error) {
	return migrations.GetMigrationCount(db)
}

// Package migrations loads and applies paired .up.sql/.down.sql migration
// files against the metadata store.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embeddedSQL embed.FS

// Migration pairs an up/down SQL script under a single ordered version.
type Migration struct {
	Version     string // e.g. "20260115120000"
	Description string
	UpSQL       string
	DownSQL     string
}

// AppliedMigration records a migration that has already run.
type AppliedMigration struct {
	Version     string
	Description string
	Batch       int
	AppliedAt   time.Time
}

const bookkeepingTable = "altus4_schema_migrations"

// Load reads migration pairs from dir, falling back to the embedded
// default set when dir is empty. Files must be named
// "<version>_<description>.up.sql" / "<version>_<description>.down.sql".
func Load(dir string) ([]Migration, error) {
	var fsys fs.FS = embeddedSQL
	root := "sql"
	if dir != "" {
		fsys = os.DirFS(dir)
		root = "."
	}

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := map[string]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		isUp := strings.HasSuffix(name, ".up.sql")
		isDown := strings.HasSuffix(name, ".down.sql")
		if !isUp && !isDown {
			continue
		}

		base := strings.TrimSuffix(strings.TrimSuffix(name, ".up.sql"), ".down.sql")
		parts := strings.SplitN(base, "_", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("migration file %q missing version_description pattern", name)
		}
		version, description := parts[0], parts[1]

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Description: description}
			byVersion[version] = m
		}

		content, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", name, err)
		}

		if isUp {
			m.UpSQL = string(content)
		} else {
			m.DownSQL = string(content)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			return nil, fmt.Errorf("migration %s has no .up.sql", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func ensureBookkeeping(db *sql.DB) error {
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version VARCHAR(32) PRIMARY KEY,
			description VARCHAR(255) NOT NULL,
			batch INT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB`, bookkeepingTable))
	return err
}

// GetAppliedMigrations returns every migration recorded as applied, ordered
// by version.
func GetAppliedMigrations(db *sql.DB) ([]AppliedMigration, error) {
	if err := ensureBookkeeping(db); err != nil {
		return nil, fmt.Errorf("ensure bookkeeping table: %w", err)
	}

	rows, err := db.Query(fmt.Sprintf(
		"SELECT version, description, batch, applied_at FROM %s ORDER BY version", bookkeepingTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		if err := rows.Scan(&a.Version, &a.Description, &a.Batch, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func latestBatch(applied []AppliedMigration) int {
	max := 0
	for _, a := range applied {
		if a.Batch > max {
			max = a.Batch
		}
	}
	return max
}

// Run applies every pending migration under dir in a single new batch.
func Run(db *sql.DB, logger *slog.Logger, dir string) error {
	if logger == nil {
		logger = slog.Default()
	}

	all, err := Load(dir)
	if err != nil {
		return err
	}

	applied, err := GetAppliedMigrations(db)
	if err != nil {
		return err
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, a := range applied {
		appliedSet[a.Version] = true
	}

	batch := latestBatch(applied) + 1
	ranAny := false

	for _, m := range all {
		if appliedSet[m.Version] {
			continue
		}
		if err := runOne(db, m, batch); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Description, err)
		}
		logger.Info("migration applied", "version", m.Version, "description", m.Description, "batch", batch)
		ranAny = true
	}

	if !ranAny {
		logger.Info("no pending migrations")
	}
	return nil
}

func runOne(db *sql.DB, m Migration, batch int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(m.UpSQL) {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	_, err = tx.Exec(fmt.Sprintf(
		"INSERT INTO %s (version, description, batch) VALUES (?, ?, ?)", bookkeepingTable),
		m.Version, m.Description, batch)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// RollbackSteps reverts the last n applied migrations (across any batch),
// most recent first.
func RollbackSteps(db *sql.DB, logger *slog.Logger, dir string, n int) error {
	return rollback(db, logger, dir, func(applied []AppliedMigration) []AppliedMigration {
		if n > len(applied) {
			n = len(applied)
		}
		return applied[len(applied)-n:]
	})
}

// RollbackBatch reverts every migration in the most recently applied batch.
func RollbackBatch(db *sql.DB, logger *slog.Logger, dir string) error {
	return rollback(db, logger, dir, func(applied []AppliedMigration) []AppliedMigration {
		latest := latestBatch(applied)
		var out []AppliedMigration
		for _, a := range applied {
			if a.Batch == latest {
				out = append(out, a)
			}
		}
		return out
	})
}

// Reset reverts every applied migration.
func Reset(db *sql.DB, logger *slog.Logger, dir string) error {
	return rollback(db, logger, dir, func(applied []AppliedMigration) []AppliedMigration {
		return applied
	})
}

// Fresh resets and re-applies every migration from scratch.
func Fresh(db *sql.DB, logger *slog.Logger, dir string) error {
	if err := Reset(db, logger, dir); err != nil {
		return err
	}
	return Run(db, logger, dir)
}

func rollback(db *sql.DB, logger *slog.Logger, dir string, selector func([]AppliedMigration) []AppliedMigration) error {
	if logger == nil {
		logger = slog.Default()
	}

	all, err := Load(dir)
	if err != nil {
		return err
	}
	byVersion := make(map[string]Migration, len(all))
	for _, m := range all {
		byVersion[m.Version] = m
	}

	applied, err := GetAppliedMigrations(db)
	if err != nil {
		return err
	}

	toRevert := selector(applied)
	for i := len(toRevert) - 1; i >= 0; i-- {
		a := toRevert[i]
		m, ok := byVersion[a.Version]
		if !ok || m.DownSQL == "" {
			return fmt.Errorf("migration %s has no .down.sql to roll back with", a.Version)
		}
		if err := revertOne(db, m); err != nil {
			return fmt.Errorf("rollback %s (%s): %w", m.Version, m.Description, err)
		}
		logger.Info("migration reverted", "version", m.Version, "description", m.Description)
	}
	return nil
}

func revertOne(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(m.DownSQL) {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE version = ?", bookkeepingTable), m.Version); err != nil {
		return err
	}

	return tx.Commit()
}

// StatusEntry describes one migration's on-disk/applied state, used by the
// migration CLI's "status" command.
type StatusEntry struct {
	Version     string
	Description string
	Applied     bool
	Batch       int
}

// Status reports every migration found on disk and whether it has been
// applied. If db is nil or unreachable, every entry is reported with
// Applied=false and DBUnavailable is set, so the command remains usable
// without a live database.
func Status(db *sql.DB, dir string) (entries []StatusEntry, dbUnavailable bool, err error) {
	all, err := Load(dir)
	if err != nil {
		return nil, false, err
	}

	var applied []AppliedMigration
	if db != nil {
		if pingErr := db.Ping(); pingErr == nil {
			applied, err = GetAppliedMigrations(db)
			if err != nil {
				dbUnavailable = true
			}
		} else {
			dbUnavailable = true
		}
	} else {
		dbUnavailable = true
	}

	appliedByVersion := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		appliedByVersion[a.Version] = a
	}

	for _, m := range all {
		a, ok := appliedByVersion[m.Version]
		entries = append(entries, StatusEntry{
			Version:     m.Version,
			Description: m.Description,
			Applied:     ok,
			Batch:       a.Batch,
		})
	}
	return entries, dbUnavailable, nil
}

// GetLatestVersion returns the version of the most recently applied migration.
func GetLatestVersion(db *sql.DB) (string, error) {
	applied, err := GetAppliedMigrations(db)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", nil
	}
	return applied[len(applied)-1].Version, nil
}

// GetMigrationCount returns the number of applied migrations.
func GetMigrationCount(db *sql.DB) (int, error) {
	applied, err := GetAppliedMigrations(db)
	if err != nil {
		return 0, err
	}
	return len(applied), nil
}

// splitStatements splits a .sql file's contents on ";" statement
// terminators, discarding empty trailing fragments and comment-only lines.
func splitStatements(script string) []string {
	raw := strings.Split(script, ";")
	out := make([]string, 0, len(raw))
	for _, stmt := range raw {
		var kept []string
		for _, line := range strings.Split(stmt, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			kept = append(kept, line)
		}
		trimmed := strings.TrimSpace(strings.Join(kept, "\n"))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

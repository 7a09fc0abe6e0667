// Package main is the migration CLI for the Altus4 Core metadata store.
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/altus4/core/internal/config"
	"github.com/altus4/core/internal/database"
	"github.com/altus4/core/internal/database/migrations"
	"github.com/altus4/core/internal/logging"
)

var (
	migrationPath string
	steps         int
	force         bool
)

func main() {
	logger := logging.SetDefault()

	root := &cobra.Command{
		Use:   "altus4-migrate",
		Short: "Manage the Altus4 Core metadata store schema",
	}
	root.PersistentFlags().StringVar(&migrationPath, "path", "", "directory of .up.sql/.down.sql files (default: embedded)")
	root.PersistentFlags().BoolVar(&force, "force", false, "accepted but not read by any command; no command prompts for confirmation")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply every pending migration",
		RunE: withDB(logger, func(db *sql.DB) error {
			return migrations.Run(db, logger, migrationPath)
		}),
	}

	installCmd := &cobra.Command{
		Use:   "migrate:install",
		Short: "Create the migration bookkeeping table without applying migrations",
		RunE: withDB(logger, func(db *sql.DB) error {
			_, err := migrations.GetAppliedMigrations(db)
			return err
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "migrate:status",
		Short: "Show applied and pending migrations",
		RunE: withDB(logger, func(db *sql.DB) error {
			entries, unavailable, err := migrations.Status(db, migrationPath)
			if err != nil {
				return err
			}
			if unavailable {
				fmt.Println("warning: could not reach metadata store, showing file-only status")
			}
			for _, e := range entries {
				state := "pending"
				if e.Applied {
					state = fmt.Sprintf("applied (batch %d)", e.Batch)
				}
				fmt.Printf("%s  %-40s  %s\n", e.Version, e.Description, state)
			}
			return nil
		}),
	}

	rollbackCmd := &cobra.Command{
		Use:   "migrate:rollback",
		Short: "Revert the most recently applied migration batch, or --step migrations",
		RunE: withDB(logger, func(db *sql.DB) error {
			if steps > 0 {
				return migrations.RollbackSteps(db, logger, migrationPath, steps)
			}
			return migrations.RollbackBatch(db, logger, migrationPath)
		}),
	}
	rollbackCmd.Flags().IntVar(&steps, "step", 0, "number of migrations to roll back")

	resetCmd := &cobra.Command{
		Use:   "migrate:reset",
		Short: "Revert every applied migration",
		RunE: withDB(logger, func(db *sql.DB) error {
			return migrations.Reset(db, logger, migrationPath)
		}),
	}

	refreshCmd := &cobra.Command{
		Use:   "migrate:refresh",
		Short: "Reset and re-apply every migration",
		RunE: withDB(logger, func(db *sql.DB) error {
			return migrations.Fresh(db, logger, migrationPath)
		}),
	}

	freshCmd := &cobra.Command{
		Use:   "migrate:fresh",
		Short: "Alias for migrate:refresh",
		RunE: withDB(logger, func(db *sql.DB) error {
			return migrations.Fresh(db, logger, migrationPath)
		}),
	}

	root.AddCommand(migrateCmd, installCmd, statusCmd, rollbackCmd, resetCmd, refreshCmd, freshCmd)

	if err := root.Execute(); err != nil {
		logger.Error("migration command failed", "error", err)
		os.Exit(1)
	}
}

func withDB(logger *slog.Logger, fn func(*sql.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to metadata store: %w", err)
		}
		defer db.Close()
		return fn(db)
	}
}

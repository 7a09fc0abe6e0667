// Package main is the entry point for the Altus4 Core API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/altus4/core/internal/analytics"
	"github.com/altus4/core/internal/auth"
	"github.com/altus4/core/internal/cache"
	"github.com/altus4/core/internal/config"
	"github.com/altus4/core/internal/crypto"
	"github.com/altus4/core/internal/database"
	apihttp "github.com/altus4/core/internal/http"
	"github.com/altus4/core/internal/http/handlers"
	"github.com/altus4/core/internal/llm"
	"github.com/altus4/core/internal/logging"
	"github.com/altus4/core/internal/orchestrator"
	"github.com/altus4/core/internal/registry"
	"github.com/altus4/core/internal/repository"
	"github.com/altus4/core/internal/schema"
	"github.com/altus4/core/internal/version"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting altus4-core",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg)
	if err != nil {
		logger.Error("failed to connect to metadata store", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger, ""); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		count, _ := database.GetMigrationCount(db)
		logger.Info("metadata store schema ready", "schema_version", schemaVersion, "migrations_applied", count)
	}

	repos := repository.NewRepositories(db)

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize credential encryptor", "error", err)
		os.Exit(1)
	}

	store := cache.New(fmt.Sprintf("%s:%d", cfg.CacheHost, cfg.CachePort), cfg.CachePassword, logger)
	defer func() { _ = store.Close() }()

	authenticator := auth.New(cfg.JWTSecret, 24*time.Hour, repos.APIKey)
	limiter := cache.NewRateLimiter(store)

	reg := registry.New(repos.Connection, encryptor, cfg.DBConnectTimeout(), cfg.DBAcquireTimeout(), logger)
	defer reg.Close()

	inspector := schema.New()

	var llmAdapter *llm.Adapter
	if cfg.LLMAPIKey != "" {
		llmAdapter = llm.New(cfg.LLMAPIKey, cfg.LLMModel, "", cfg.LLMTimeout(), logger)
		logger.Info("AI adapter enabled", "model", cfg.LLMModel)
	} else {
		logger.Warn("LLM_API_KEY not set - AI enrichment disabled, search falls back to keyword-only mode")
	}

	analyticsSvc := analytics.New(repos.Analytics, store)
	orch := orchestrator.New(reg, inspector, store, llmAdapter, analyticsSvc, logger)

	h := &apihttp.Handlers{
		Auth:      handlers.NewAuthHandler(repos.User, authenticator),
		Databases: handlers.NewDatabaseHandler(repos.Connection, reg, inspector),
		Keys:      handlers.NewKeyHandler(repos.APIKey),
		Search:    handlers.NewSearchHandler(orch),
		Analytics: handlers.NewAnalyticsHandler(analyticsSvc),
	}
	router := apihttp.NewRouter(h, authenticator, limiter, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

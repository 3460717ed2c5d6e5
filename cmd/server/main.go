// Package main implements the entry point for the branchvote API server,
// which serves node expansion for binary decision trees and the admin
// surface over the generation queues.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/branchvote/branchvote-api/internal/config"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
	"github.com/branchvote/branchvote-api/migrations"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(logger.Config{Level: cfg.Server.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("pregen_mode", cfg.Pregen.Mode),
		slog.Int("max_preload_depth", cfg.Pregen.MaxPreloadDepth))

	db, err := openDatabase(cfg, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("failed to close database", slog.String("error", err.Error()))
		}
	}()

	if err := migrations.Up(db); err != nil {
		return err
	}
	appLogger.Info("database migrations applied")

	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	return app.startHTTPServer(ctx, app.setupRouter())
}

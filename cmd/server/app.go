package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/branchvote/branchvote-api/internal/config"
	"github.com/branchvote/branchvote-api/internal/platform/gcs"
	"github.com/branchvote/branchvote-api/internal/platform/gemini"
	"github.com/branchvote/branchvote-api/internal/platform/postgres"
	"github.com/branchvote/branchvote-api/internal/service"
	"github.com/branchvote/branchvote-api/internal/store"
	"github.com/branchvote/branchvote-api/internal/task"
)

// application holds the wired dependencies of the server process.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	treeStore store.TreeStore
	nodeStore store.NodeStore
	taskStore store.ImageTaskStore
	jobStore  store.JobStore

	media *gcs.MediaStore

	expansionService *service.ExpansionService
	pregenService    *service.PregenService
	treeService      *service.TreeService
	adminService     *service.AdminService

	runner *task.Runner
	reaper *task.Reaper
}

// newApplication wires stores, providers and services for the server
// process. The server expands nodes and enqueues follow-up work; the queue
// worker binary does the rendering.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	app.treeStore = postgres.NewPostgresTreeStore(db, logger)
	app.nodeStore = postgres.NewPostgresNodeStore(db, logger)
	app.taskStore = postgres.NewPostgresImageTaskStore(db, logger)
	app.jobStore = postgres.NewPostgresJobStore(db, logger)

	media, err := gcs.NewMediaStore(ctx, gcs.Config{
		Bucket:        cfg.Storage.Bucket,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create media store: %w", err)
	}
	app.media = media

	textGen, err := gemini.NewTextGenerator(ctx, logger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create text generator: %w", err)
	}
	imageGen, err := gemini.NewImageGenerator(ctx, logger, cfg.LLM, media)
	if err != nil {
		return nil, fmt.Errorf("failed to create image generator: %w", err)
	}

	app.expansionService, err = service.NewExpansionService(
		db, app.treeStore, app.nodeStore, app.taskStore,
		textGen, media, cfg.Pregen.MaxPreloadDepth, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create expansion service: %w", err)
	}

	app.runner = task.NewRunner(task.RunnerConfig{
		WorkerCount: cfg.Pregen.Workers,
	}, logger)
	app.expansionService.SetRunner(app.runner)

	app.pregenService, err = service.NewPregenService(
		app.expansionService, app.jobStore, app.runner, cfg.Pregen.Mode, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pregen service: %w", err)
	}
	app.expansionService.SetScheduler(app.pregenService)

	app.treeService, err = service.NewTreeService(db, app.treeStore, app.nodeStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree service: %w", err)
	}

	// Admin bulk operations render tasks in place, so the server carries its
	// own executor alongside the queue worker's.
	executor, err := task.NewImageTaskExecutor(
		app.nodeStore, app.treeStore, app.taskStore, imageGen, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task executor: %w", err)
	}

	app.adminService, err = service.NewAdminService(
		app.nodeStore, app.treeStore, app.taskStore, media, executor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin service: %w", err)
	}

	app.reaper, err = task.NewReaper(app.taskStore, task.ReaperConfig{
		Timeout:  time.Duration(cfg.Worker.StuckTaskTimeoutMinutes) * time.Minute,
		Interval: time.Duration(cfg.Worker.ReapIntervalMinutes) * time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reaper: %w", err)
	}

	app.runner.Start()

	return app, nil
}

// cleanup releases resources held by the application in reverse wiring
// order.
func (app *application) cleanup() {
	app.runner.Stop()
	if err := app.media.Close(); err != nil {
		app.logger.Error("failed to close media store", slog.String("error", err.Error()))
	}
}

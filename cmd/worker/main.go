// Package main implements the queue worker binary: it claims image tasks and
// pregenerate jobs from the database queues, renders illustrations, expands
// pre-generated nodes, and reaps tasks abandoned by dead workers.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/branchvote/branchvote-api/internal/config"
	"github.com/branchvote/branchvote-api/internal/platform/gcs"
	"github.com/branchvote/branchvote-api/internal/platform/gemini"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
	"github.com/branchvote/branchvote-api/internal/platform/postgres"
	"github.com/branchvote/branchvote-api/internal/service"
	"github.com/branchvote/branchvote-api/internal/task"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	workerLogger, err := logger.Setup(logger.Config{Level: cfg.Server.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	workerLogger = workerLogger.With(slog.String("process", "worker"))

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			workerLogger.Error("failed to close database", slog.String("error", err.Error()))
		}
	}()
	workerLogger.Info("database connection established")

	treeStore := postgres.NewPostgresTreeStore(db, workerLogger)
	nodeStore := postgres.NewPostgresNodeStore(db, workerLogger)
	taskStore := postgres.NewPostgresImageTaskStore(db, workerLogger)
	jobStore := postgres.NewPostgresJobStore(db, workerLogger)

	media, err := gcs.NewMediaStore(ctx, gcs.Config{
		Bucket:        cfg.Storage.Bucket,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, workerLogger)
	if err != nil {
		return fmt.Errorf("failed to create media store: %w", err)
	}
	defer func() {
		if err := media.Close(); err != nil {
			workerLogger.Error("failed to close media store", slog.String("error", err.Error()))
		}
	}()

	textGen, err := gemini.NewTextGenerator(ctx, workerLogger, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create text generator: %w", err)
	}
	imageGen, err := gemini.NewImageGenerator(ctx, workerLogger, cfg.LLM, media)
	if err != nil {
		return fmt.Errorf("failed to create image generator: %w", err)
	}

	// Pregenerate jobs expand nodes, so the worker carries the full
	// expansion stack and chains follow-up jobs through the same queue.
	expansion, err := service.NewExpansionService(
		db, treeStore, nodeStore, taskStore, textGen, media,
		cfg.Pregen.MaxPreloadDepth, workerLogger)
	if err != nil {
		return fmt.Errorf("failed to create expansion service: %w", err)
	}
	pregen, err := service.NewPregenService(
		expansion, jobStore, nil, service.PregenModeQueue, workerLogger)
	if err != nil {
		return fmt.Errorf("failed to create pregen service: %w", err)
	}
	expansion.SetScheduler(pregen)

	executor, err := task.NewImageTaskExecutor(
		nodeStore, treeStore, taskStore, imageGen, workerLogger)
	if err != nil {
		return fmt.Errorf("failed to create task executor: %w", err)
	}

	registry := task.NewRegistry()
	if err := registry.Register(service.JobTypePregenerate, pregen.HandleJob); err != nil {
		return fmt.Errorf("failed to register pregenerate handler: %w", err)
	}

	worker, err := task.NewQueueWorker(taskStore, jobStore, executor, registry,
		task.WorkerConfig{
			PollInterval:   time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second,
			ImageBatchSize: cfg.Worker.ImageBatchSize,
		}, workerLogger)
	if err != nil {
		return fmt.Errorf("failed to create queue worker: %w", err)
	}

	reaper, err := task.NewReaper(taskStore, task.ReaperConfig{
		Timeout:  time.Duration(cfg.Worker.StuckTaskTimeoutMinutes) * time.Minute,
		Interval: time.Duration(cfg.Worker.ReapIntervalMinutes) * time.Minute,
	}, workerLogger)
	if err != nil {
		return fmt.Errorf("failed to create reaper: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		reaper.Run(ctx)
	}()

	<-ctx.Done()
	workerLogger.Info("shutdown signal received")
	wg.Wait()

	workerLogger.Info("worker shutdown completed")
	return nil
}

// openDatabase connects to the database with the worker's pool settings.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/store"
	"golang.org/x/sync/errgroup"
)

// WorkerConfig holds configuration for the queue worker.
type WorkerConfig struct {
	// PollInterval is how often the worker polls both queues.
	PollInterval time.Duration

	// ImageBatchSize is how many image tasks one poll claims at most.
	ImageBatchSize int
}

// DefaultWorkerConfig returns a WorkerConfig with reasonable defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:   2 * time.Second,
		ImageBatchSize: 3,
	}
}

// QueueWorker polls the image task queue and the generic job queue on one
// ticker. Image tasks in a batch render concurrently; jobs are claimed and
// dispatched one at a time through the handler registry.
type QueueWorker struct {
	tasks    store.ImageTaskStore
	jobs     store.JobStore
	executor *ImageTaskExecutor
	registry *Registry
	config   WorkerConfig
	logger   *slog.Logger
}

// NewQueueWorker creates a new QueueWorker.
// It returns an error if any of the required dependencies are nil.
func NewQueueWorker(
	tasks store.ImageTaskStore,
	jobs store.JobStore,
	executor *ImageTaskExecutor,
	registry *Registry,
	config WorkerConfig,
	log *slog.Logger,
) (*QueueWorker, error) {
	if tasks == nil {
		return nil, fmt.Errorf("image task store cannot be nil")
	}
	if jobs == nil {
		return nil, fmt.Errorf("job store cannot be nil")
	}
	if executor == nil {
		return nil, fmt.Errorf("task executor cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("handler registry cannot be nil")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWorkerConfig().PollInterval
	}
	if config.ImageBatchSize <= 0 {
		config.ImageBatchSize = DefaultWorkerConfig().ImageBatchSize
	}
	if log == nil {
		log = slog.Default()
	}

	return &QueueWorker{
		tasks:    tasks,
		jobs:     jobs,
		executor: executor,
		registry: registry,
		config:   config,
		logger:   log.With(slog.String("component", "queue_worker")),
	}, nil
}

// Run polls both queues until the context is cancelled.
func (w *QueueWorker) Run(ctx context.Context) {
	w.logger.Info("queue worker started",
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("image_batch_size", w.config.ImageBatchSize))

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("queue worker stopping")
			return
		case <-ticker.C:
			w.pollImageTasks(ctx)
			w.pollJobs(ctx)
		}
	}
}

// pollImageTasks claims up to a batch of pending image tasks and renders them
// concurrently. Execution errors are already recorded on the task rows by the
// executor, so they are not propagated.
func (w *QueueWorker) pollImageTasks(ctx context.Context) {
	claimed, err := w.tasks.ClaimPending(ctx, w.config.ImageBatchSize)
	if err != nil {
		w.logger.Error("failed to claim image tasks", slog.String("error", err.Error()))
		return
	}
	if len(claimed) == 0 {
		return
	}

	w.logger.Debug("claimed image tasks", slog.Int("count", len(claimed)))

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range claimed {
		task := task
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					w.logger.Error("image task execution panicked",
						slog.String("task_id", task.ID.String()),
						slog.Any("panic", rec))
					_ = w.tasks.MarkFailed(gctx, task.ID, fmt.Sprintf("panic: %v", rec))
				}
			}()
			_ = w.executor.Execute(gctx, task)
			return nil
		})
	}
	_ = g.Wait()
}

// pollJobs drains the job queue one claim at a time until it is empty or the
// context is cancelled, so a burst of chained jobs does not wait a full poll
// interval per job.
func (w *QueueWorker) pollJobs(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.jobs.ClaimNext(ctx)
		if err != nil {
			w.logger.Error("failed to claim job", slog.String("error", err.Error()))
			return
		}
		if job == nil {
			return
		}

		w.dispatch(ctx, job)
	}
}

// dispatch runs the registered handler for a claimed job and settles the job
// row. A panicking handler counts as a failure.
func (w *QueueWorker) dispatch(ctx context.Context, job *domain.Job) {
	log := w.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.Type),
		slog.Int("attempt", job.Attempts))

	handler, ok := w.registry.Get(job.Type)
	if !ok {
		log.Error("no handler registered for job type")
		if err := w.jobs.Fail(ctx, job.ID, fmt.Sprintf("no handler registered for type %q", job.Type)); err != nil {
			log.Error("failed to record job failure", slog.String("error", err.Error()))
		}
		return
	}

	var handlerErr error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				handlerErr = fmt.Errorf("handler panicked: %v", rec)
			}
		}()
		handlerErr = handler(ctx, job.Payload)
	}()

	if handlerErr != nil {
		log.Warn("job failed", slog.String("error", handlerErr.Error()))
		if err := w.jobs.Fail(ctx, job.ID, handlerErr.Error()); err != nil {
			log.Error("failed to record job failure", slog.String("error", err.Error()))
		}
		return
	}

	if err := w.jobs.Complete(ctx, job.ID); err != nil {
		log.Error("failed to mark job completed", slog.String("error", err.Error()))
		return
	}
	log.Debug("job completed")
}

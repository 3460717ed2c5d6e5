package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/branchvote/branchvote-api/internal/store"
)

// ReaperConfig holds configuration for the stuck-task reaper.
type ReaperConfig struct {
	// Timeout is how long a task may sit in generating before it is
	// considered stuck.
	Timeout time.Duration

	// Interval is how often the background sweep runs.
	Interval time.Duration
}

// DefaultReaperConfig returns a ReaperConfig with reasonable defaults.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Timeout:  5 * time.Minute,
		Interval: time.Minute,
	}
}

// Reaper fails image tasks that have been generating longer than the timeout,
// which happens when a worker dies mid-render and its claim is never settled.
// Reaped tasks carry a synthetic error message distinguishable from real
// render failures, and become retryable through the admin surface like any
// other failed task.
type Reaper struct {
	tasks  store.ImageTaskStore
	config ReaperConfig
	logger *slog.Logger
}

// NewReaper creates a new Reaper.
// It returns an error if the task store is nil.
func NewReaper(tasks store.ImageTaskStore, config ReaperConfig, log *slog.Logger) (*Reaper, error) {
	if tasks == nil {
		return nil, fmt.Errorf("image task store cannot be nil")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultReaperConfig().Timeout
	}
	if config.Interval <= 0 {
		config.Interval = DefaultReaperConfig().Interval
	}
	if log == nil {
		log = slog.Default()
	}

	return &Reaper{
		tasks:  tasks,
		config: config,
		logger: log.With(slog.String("component", "reaper")),
	}, nil
}

// Sweep fails every task stuck in generating longer than the timeout and
// returns how many rows it swept. Also called opportunistically before task
// listings, so stale rows never survive past the next read.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	msg := fmt.Sprintf("reaped: stuck in generating longer than %s", r.config.Timeout)

	count, err := r.tasks.FailStuck(ctx, r.config.Timeout, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stuck tasks: %w", err)
	}

	if count > 0 {
		r.logger.Warn("swept stuck image tasks",
			slog.Int("count", count),
			slog.Duration("timeout", r.config.Timeout))
	}
	return count, nil
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started",
		slog.Duration("timeout", r.config.Timeout),
		slog.Duration("interval", r.config.Interval))

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopping")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

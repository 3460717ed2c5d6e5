package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// RunnerConfig holds configuration for the continuation runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers run continuations.
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory queue.
	QueueSize int
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount: 4,
		QueueSize:   100,
	}
}

// Runner executes fire-and-forget continuations on a fixed pool of worker
// goroutines. Work runs with a context detached from the request that
// submitted it, so pre-generation keeps going after the response is sent.
type Runner struct {
	ch         chan func(ctx context.Context)
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	stopped    bool
	config     RunnerConfig
	logger     *slog.Logger
}

// NewRunner creates a new Runner.
func NewRunner(config RunnerConfig, logger *slog.Logger) *Runner {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultRunnerConfig().WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRunnerConfig().QueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		ch:         make(chan func(ctx context.Context), config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger.With(slog.String("component", "runner")),
	}
}

// Start launches the worker goroutines.
func (r *Runner) Start() {
	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Submit queues a continuation for execution. Returns an error when the
// queue is full or the runner has stopped; the work is then simply dropped,
// which is acceptable for pre-generation (the next user request regenerates
// it on demand).
func (r *Runner) Submit(fn func(ctx context.Context)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return fmt.Errorf("runner is stopped")
	}

	select {
	case r.ch <- fn:
		return nil
	default:
		return fmt.Errorf("continuation queue is full")
	}
}

// Stop drains the queue and waits for in-flight continuations, then cancels
// their context. Safe to call once.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.ch)
	r.mu.Unlock()

	r.wg.Wait()
	r.cancelFunc()
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting continuation worker", slog.Int("worker_id", id))

	for fn := range r.ch {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("continuation panicked",
						slog.Int("worker_id", id),
						slog.Any("panic", rec))
				}
			}()
			fn(r.ctx)
		}()
	}

	r.logger.Debug("continuation worker stopped", slog.Int("worker_id", id))
}

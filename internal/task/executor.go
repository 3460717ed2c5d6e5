package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/generation"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
	"github.com/branchvote/branchvote-api/internal/store"
)

// ImageTaskExecutor renders one claimed image task: it loads the node and its
// tree's generation config, calls the image generator, and records the outcome
// on the task row. The queue worker and the admin bulk operations share this
// type so both paths behave identically.
type ImageTaskExecutor struct {
	nodes  store.NodeStore
	trees  store.TreeStore
	tasks  store.ImageTaskStore
	images generation.ImageGenerator
	logger *slog.Logger
}

// NewImageTaskExecutor creates a new ImageTaskExecutor.
// It returns an error if any of the required dependencies are nil.
func NewImageTaskExecutor(
	nodes store.NodeStore,
	trees store.TreeStore,
	tasks store.ImageTaskStore,
	images generation.ImageGenerator,
	log *slog.Logger,
) (*ImageTaskExecutor, error) {
	if nodes == nil {
		return nil, fmt.Errorf("node store cannot be nil")
	}
	if trees == nil {
		return nil, fmt.Errorf("tree store cannot be nil")
	}
	if tasks == nil {
		return nil, fmt.Errorf("image task store cannot be nil")
	}
	if images == nil {
		return nil, fmt.Errorf("image generator cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &ImageTaskExecutor{
		nodes:  nodes,
		trees:  trees,
		tasks:  tasks,
		images: images,
		logger: log.With(slog.String("component", "image_task_executor")),
	}, nil
}

// Execute renders the task's illustration and terminates the task row:
// completed with the stored URL on success, failed with the error message
// otherwise. The caller must have claimed the task already (status
// generating). A returned error always means the task row was marked failed.
func (e *ImageTaskExecutor) Execute(ctx context.Context, task *domain.ImageTask) error {
	log := logger.FromContextOrDefault(ctx, e.logger)

	node, err := e.nodes.GetByID(ctx, task.NodeID)
	if err != nil {
		return e.fail(ctx, task, fmt.Errorf("load node: %w", err))
	}

	tree, err := e.trees.GetByID(ctx, task.TreeID)
	if err != nil {
		return e.fail(ctx, task, fmt.Errorf("load tree: %w", err))
	}

	content := domain.NodeContent{
		Title:       node.Title,
		Description: node.Description,
		Context:     node.Context,
	}

	url, err := e.images.GenerateImage(ctx, &tree.Config, node.ID.String(), content)
	if err != nil {
		return e.fail(ctx, task, err)
	}

	if err := e.tasks.MarkCompleted(ctx, task.ID, url); err != nil {
		return e.fail(ctx, task, fmt.Errorf("mark completed: %w", err))
	}

	// Swapping the placeholder for the rendered image is best-effort: the
	// task is already terminal and backfill will not recreate it.
	if err := e.nodes.UpdateMediaURL(ctx, node.ID, url); err != nil {
		log.Error("failed to update node media URL",
			slog.String("node_id", node.ID.String()),
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
	}

	log.Debug("image task completed",
		slog.String("task_id", task.ID.String()),
		slog.String("node_id", node.ID.String()))
	return nil
}

// fail marks the task failed with the error message and returns the error.
func (e *ImageTaskExecutor) fail(ctx context.Context, task *domain.ImageTask, cause error) error {
	log := logger.FromContextOrDefault(ctx, e.logger)

	if err := e.tasks.MarkFailed(ctx, task.ID, cause.Error()); err != nil {
		log.Error("failed to mark task failed",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
	}

	log.Warn("image task failed",
		slog.String("task_id", task.ID.String()),
		slog.String("node_id", task.NodeID.String()),
		slog.String("error", cause.Error()))
	return cause
}

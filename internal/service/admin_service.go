package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
	"github.com/branchvote/branchvote-api/internal/store"
	"github.com/google/uuid"
)

// listPageSize is the page size used when snapshotting tasks for a bulk
// operation.
const listPageSize = 100

// AdminServiceError is a custom error type for admin bulk operation errors.
type AdminServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for AdminServiceError.
func (e *AdminServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("admin service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("admin service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *AdminServiceError) Unwrap() error {
	return e.Err
}

// TaskExecutor renders one claimed image task and records the outcome on the
// task row itself. A returned error means the task was marked failed.
type TaskExecutor interface {
	Execute(ctx context.Context, task *domain.ImageTask) error
}

// BulkResult reports what a bulk operation touched. Affected is how many
// tasks the operation selected; Succeeded/Failed split the ones it executed.
type BulkResult struct {
	Affected  int `json:"affected"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// AdminService implements the bulk controls layered on top of the image
// task queue: retry-all-failed, restart-pending, backfill, clear-completed.
// Every operation first probes the storage backend and fails up front when
// it is unreachable, instead of creating tasks destined to fail one by one.
type AdminService struct {
	nodes    store.NodeStore
	trees    store.TreeStore
	tasks    store.ImageTaskStore
	checker  StorageChecker
	executor TaskExecutor
	logger   *slog.Logger
}

// NewAdminService creates a new AdminService.
// It returns an error if any of the required dependencies are nil.
func NewAdminService(
	nodes store.NodeStore,
	trees store.TreeStore,
	tasks store.ImageTaskStore,
	checker StorageChecker,
	executor TaskExecutor,
	log *slog.Logger,
) (*AdminService, error) {
	if nodes == nil {
		return nil, fmt.Errorf("node store cannot be nil")
	}
	if trees == nil {
		return nil, fmt.Errorf("tree store cannot be nil")
	}
	if tasks == nil {
		return nil, fmt.Errorf("image task store cannot be nil")
	}
	if checker == nil {
		return nil, fmt.Errorf("storage checker cannot be nil")
	}
	if executor == nil {
		return nil, fmt.Errorf("task executor cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &AdminService{
		nodes:    nodes,
		trees:    trees,
		tasks:    tasks,
		checker:  checker,
		executor: executor,
		logger:   log.With(slog.String("component", "admin_service")),
	}, nil
}

// RetryAllFailed resets every failed task of the tree to pending, then
// executes them sequentially to bound provider load.
func (s *AdminService) RetryAllFailed(ctx context.Context, treeID uuid.UUID) (*BulkResult, error) {
	if err := s.probe(ctx, "retry_all_failed"); err != nil {
		return nil, err
	}

	ids, err := s.tasks.ResetFailed(ctx, treeID)
	if err != nil {
		return nil, &AdminServiceError{Operation: "retry_all_failed", Message: "failed to reset tasks", Err: err}
	}

	result := s.executeByID(ctx, ids)
	s.logger.Info("retry-all-failed finished",
		slog.String("tree_id", treeID.String()),
		slog.Int("affected", result.Affected),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed))
	return result, nil
}

// RestartPending executes the tree's pending tasks in place. Rows currently
// claimed by a live worker are skipped: the claim protocol refuses them.
func (s *AdminService) RestartPending(ctx context.Context, treeID uuid.UUID) (*BulkResult, error) {
	if err := s.probe(ctx, "restart_pending"); err != nil {
		return nil, err
	}

	ids, err := s.snapshotTaskIDs(ctx, treeID, domain.ImageTaskStatusPending)
	if err != nil {
		return nil, &AdminServiceError{Operation: "restart_pending", Message: "failed to list pending tasks", Err: err}
	}

	result := s.executeByID(ctx, ids)
	s.logger.Info("restart-pending finished",
		slog.String("tree_id", treeID.String()),
		slog.Int("affected", result.Affected),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed))
	return result, nil
}

// Backfill finds the tree's nodes that still show the placeholder image and
// have no task row at all, creates pending tasks for them, and executes the
// new tasks sequentially.
func (s *AdminService) Backfill(ctx context.Context, treeID uuid.UUID) (*BulkResult, error) {
	if err := s.probe(ctx, "backfill"); err != nil {
		return nil, err
	}

	tree, err := s.trees.GetByID(ctx, treeID)
	if err != nil {
		return nil, err
	}

	nodes, err := s.nodes.FindPlaceholderNodesWithoutTasks(ctx, treeID, tree.Config.PlaceholderMediaURL)
	if err != nil {
		return nil, &AdminServiceError{Operation: "backfill", Message: "failed to find placeholder nodes", Err: err}
	}

	log := logger.FromContextOrDefault(ctx, s.logger)

	ids := make([]uuid.UUID, 0, len(nodes))
	for _, node := range nodes {
		task, err := domain.NewImageTask(node)
		if err != nil {
			log.Error("failed to build backfill task",
				slog.String("node_id", node.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if err := s.tasks.Create(ctx, task); err != nil {
			log.Error("failed to create backfill task",
				slog.String("node_id", node.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		ids = append(ids, task.ID)
	}

	result := s.executeByID(ctx, ids)
	s.logger.Info("backfill finished",
		slog.String("tree_id", treeID.String()),
		slog.Int("affected", result.Affected),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed))
	return result, nil
}

// ClearCompleted deletes the tree's completed task rows. Pure cleanup.
func (s *AdminService) ClearCompleted(ctx context.Context, treeID uuid.UUID) (int, error) {
	if err := s.probe(ctx, "clear_completed"); err != nil {
		return 0, err
	}

	count, err := s.tasks.DeleteCompleted(ctx, treeID)
	if err != nil {
		return 0, &AdminServiceError{Operation: "clear_completed", Message: "failed to delete tasks", Err: err}
	}

	s.logger.Info("clear-completed finished",
		slog.String("tree_id", treeID.String()),
		slog.Int("deleted", count))
	return count, nil
}

// probe short-circuits the bulk operation when the storage backend is down.
func (s *AdminService) probe(ctx context.Context, operation string) error {
	if err := s.checker.Check(ctx); err != nil {
		s.logger.Warn("storage probe failed, aborting bulk operation",
			slog.String("operation", operation),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// snapshotTaskIDs pages through the tree's tasks with the given status and
// collects their IDs before anything is executed, so pagination never races
// the status changes the execution causes.
func (s *AdminService) snapshotTaskIDs(
	ctx context.Context,
	treeID uuid.UUID,
	status domain.ImageTaskStatus,
) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for offset := 0; ; offset += listPageSize {
		page, err := s.tasks.ListByTree(ctx, treeID, status, listPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, task := range page {
			ids = append(ids, task.ID)
		}
		if len(page) < listPageSize {
			return ids, nil
		}
	}
}

// executeByID claims and executes tasks one at a time. Tasks that cannot be
// claimed (picked up by a worker in the meantime) are skipped silently; a
// task that fails to render counts as failed but never stops the rest.
func (s *AdminService) executeByID(ctx context.Context, ids []uuid.UUID) *BulkResult {
	log := logger.FromContextOrDefault(ctx, s.logger)
	result := &BulkResult{Affected: len(ids)}

	for _, id := range ids {
		task, err := s.tasks.ClaimByID(ctx, id)
		if err != nil {
			log.Error("failed to claim task for execution",
				slog.String("task_id", id.String()),
				slog.String("error", err.Error()))
			result.Failed++
			continue
		}
		if task == nil {
			continue
		}

		if err := s.executor.Execute(ctx, task); err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	return result
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/google/uuid"
)

// ImageTaskStore defines the interface for image task persistence and the
// claiming protocol consumed by queue workers.
type ImageTaskStore interface {
	// Create saves a new image task to the store.
	Create(ctx context.Context, task *domain.ImageTask) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ImageTask, error)

	// ClaimPending atomically claims up to limit pending tasks, oldest
	// first, moving them to generating with started_at set. The select uses
	// a locking read that skips rows locked by concurrent claimers, so no
	// task is ever handed to two workers.
	ClaimPending(ctx context.Context, limit int) ([]*domain.ImageTask, error)

	// ClaimByID atomically claims one specific pending task, moving it to
	// generating with started_at set. Returns (nil, nil) when the task is no
	// longer pending or is locked by a concurrent claimer. Used by admin
	// operations that execute tasks in place.
	ClaimByID(ctx context.Context, id uuid.UUID) (*domain.ImageTask, error)

	// MarkCompleted records a successful render: status completed, the
	// resulting media URL, and completed_at.
	MarkCompleted(ctx context.Context, id uuid.UUID, mediaURL string) error

	// MarkFailed records a failed render with the error message and
	// completed_at.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// FailStuck marks tasks stuck in generating longer than olderThan as
	// failed with the given synthetic error message. Returns how many rows
	// were swept. Safe to run concurrently with ClaimPending.
	FailStuck(ctx context.Context, olderThan time.Duration, errMsg string) (int, error)

	// ResetFailed bulk-resets a tree's failed tasks to pending, clearing
	// error and timestamps. Returns the IDs of the reset tasks.
	ResetFailed(ctx context.Context, treeID uuid.UUID) ([]uuid.UUID, error)

	// DeleteCompleted removes a tree's completed tasks. Returns the number
	// of deleted rows.
	DeleteCompleted(ctx context.Context, treeID uuid.UUID) (int, error)

	// ListByTree retrieves a tree's tasks, newest first, optionally filtered
	// by status (empty status means all), with limit/offset pagination.
	ListByTree(
		ctx context.Context,
		treeID uuid.UUID,
		status domain.ImageTaskStatus,
		limit, offset int,
	) ([]*domain.ImageTask, error)

	// WithTx returns a new ImageTaskStore instance bound to the transaction.
	WithTx(tx *sql.Tx) ImageTaskStore
}

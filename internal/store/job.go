package store

import (
	"context"
	"database/sql"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/google/uuid"
)

// JobStore defines the interface for the generic job queue. It shares the
// claiming protocol of ImageTaskStore but is generalized over a job type and
// an opaque payload, and claims at most one job per call.
type JobStore interface {
	// Enqueue saves a new pending job.
	Enqueue(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ClaimNext atomically claims the oldest pending job, moving it to
	// processing with started_at set and attempts incremented. Returns
	// (nil, nil) when the queue is empty. The locking read skips rows
	// held by concurrent claimers.
	ClaimNext(ctx context.Context) (*domain.Job, error)

	// Complete marks a job completed with completed_at set.
	Complete(ctx context.Context, id uuid.UUID) error

	// Fail records a job failure. While the job still has attempts left it
	// is reset to pending (started_at cleared, immediately eligible again);
	// once the retry budget is exhausted it becomes terminally failed.
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error

	// List retrieves jobs, newest first, optionally filtered by status
	// (empty status means all), with limit/offset pagination.
	List(
		ctx context.Context,
		status domain.JobStatus,
		limit, offset int,
	) ([]*domain.Job, error)

	// WithTx returns a new JobStore instance bound to the transaction.
	WithTx(tx *sql.Tx) JobStore
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
	"github.com/branchvote/branchvote-api/internal/store"
	"github.com/google/uuid"
)

// PostgresJobStore implements the store.JobStore interface using a
// PostgreSQL database as the storage backend. It shares the SKIP LOCKED
// claiming protocol with the image task store but claims one job at a time.
type PostgresJobStore struct {
	db     store.DBTX
	sqlDB  *sql.DB
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the
// JobStore interface.
func NewPostgresJobStore(db *sql.DB, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		sqlDB:  db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure PostgresJobStore implements store.JobStore interface
var _ store.JobStore = (*PostgresJobStore)(nil)

// WithTx implements store.JobStore.WithTx
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{
		db:     tx,
		logger: s.logger,
	}
}

const jobColumns = `id, type, payload, status, attempts, max_attempts, error,
	created_at, started_at, completed_at`

// Enqueue implements store.JobStore.Enqueue
func (s *PostgresJobStore) Enqueue(ctx context.Context, job *domain.Job) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		log.Warn("job validation failed during enqueue",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return err
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.Type,
		[]byte(job.Payload),
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.Error,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)

	if err != nil {
		log.Error("failed to enqueue job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", job.Type))
		return mapError(err)
	}

	log.Debug("job enqueued",
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.Type))
	return nil
}

// GetByID implements store.JobStore.GetByID
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to get job by ID",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return nil, mapError(err)
	}

	return job, nil
}

// ClaimNext implements store.JobStore.ClaimNext
// Returns (nil, nil) when no pending job exists. At most one job is claimed
// per call so a worker never holds more than one job's work in memory.
func (s *PostgresJobStore) ClaimNext(ctx context.Context) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var claimed *domain.Job

	claim := func(ctx context.Context, tx *sql.Tx) error {
		query := `
			SELECT ` + jobColumns + `
			FROM jobs
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`

		job, err := scanJob(tx.QueryRowContext(ctx, query, domain.JobStatusPending))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return mapError(err)
		}

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = $1, started_at = $2, attempts = attempts + 1
			WHERE id = $3
		`, domain.JobStatusProcessing, now, job.ID)
		if err != nil {
			return mapError(err)
		}

		job.Status = domain.JobStatusProcessing
		job.Attempts++
		startedAt := now
		job.StartedAt = &startedAt
		claimed = job
		return nil
	}

	var err error
	if s.sqlDB != nil {
		err = store.RunInTransaction(ctx, s.sqlDB, claim)
	} else if tx, ok := s.db.(*sql.Tx); ok {
		err = claim(ctx, tx)
	} else {
		return nil, errors.New("job store is not claimable without a transaction")
	}

	if err != nil {
		log.Error("failed to claim next job", slog.String("error", err.Error()))
		return nil, err
	}

	if claimed != nil {
		log.Debug("claimed job",
			slog.String("job_id", claimed.ID.String()),
			slog.String("job_type", claimed.Type),
			slog.Int("attempt", claimed.Attempts))
	}
	return claimed, nil
}

// Complete implements store.JobStore.Complete
func (s *PostgresJobStore) Complete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE jobs
		SET status = $1, completed_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to complete job",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return mapError(err)
	}

	return requireJobRow(result, id)
}

// Fail implements store.JobStore.Fail
// The retry policy lives here and nowhere else: while attempts remain the
// job goes straight back to pending (no backoff delay); once exhausted it
// becomes terminally failed.
func (s *PostgresJobStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()

	// Retry path: still has attempts left.
	retryQuery := `
		UPDATE jobs
		SET status = $1, error = $2, started_at = NULL
		WHERE id = $3 AND attempts < max_attempts
	`
	result, err := s.db.ExecContext(ctx, retryQuery, domain.JobStatusPending, errMsg, id)
	if err != nil {
		log.Error("failed to reset job for retry",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		log.Info("job reset to pending for retry",
			slog.String("job_id", id.String()),
			slog.String("job_error", errMsg))
		return nil
	}

	// Terminal path: retry budget exhausted.
	failQuery := `
		UPDATE jobs
		SET status = $1, error = $2, completed_at = $3
		WHERE id = $4
	`
	result, err = s.db.ExecContext(ctx, failQuery, domain.JobStatusFailed, errMsg, now, id)
	if err != nil {
		log.Error("failed to mark job failed",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return mapError(err)
	}

	if err := requireJobRow(result, id); err != nil {
		return err
	}

	log.Warn("job failed permanently",
		slog.String("job_id", id.String()),
		slog.String("job_error", errMsg))
	return nil
}

// List implements store.JobStore.List
func (s *PostgresJobStore) List(
	ctx context.Context,
	status domain.JobStatus,
	limit, offset int,
) ([]*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rows *sql.Rows
	var err error

	if status == "" {
		query := `
			SELECT ` + jobColumns + `
			FROM jobs
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`
		rows, err = s.db.QueryContext(ctx, query, limit, offset)
	} else {
		query := `
			SELECT ` + jobColumns + `
			FROM jobs
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`
		rows, err = s.db.QueryContext(ctx, query, status, limit, offset)
	}

	if err != nil {
		log.Error("failed to list jobs", slog.String("error", err.Error()))
		return nil, mapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	jobs := []*domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

func requireJobRow(result sql.Result, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var payload []byte
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.Type,
		&payload,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&errMsg,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = payload
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	return &job, nil
}

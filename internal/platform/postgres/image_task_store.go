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

// PostgresImageTaskStore implements the store.ImageTaskStore interface
// using a PostgreSQL database as the storage backend. The claim protocol
// relies on FOR UPDATE SKIP LOCKED so concurrent workers never claim the
// same row.
type PostgresImageTaskStore struct {
	db     store.DBTX
	sqlDB  *sql.DB
	logger *slog.Logger
}

// NewPostgresImageTaskStore creates a new PostgreSQL implementation of the
// ImageTaskStore interface. db is used for plain reads and writes; the
// claiming read opens its own short-lived transaction on it when the store
// is bound to a *sql.DB.
func NewPostgresImageTaskStore(db *sql.DB, logger *slog.Logger) *PostgresImageTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresImageTaskStore{
		db:     db,
		sqlDB:  db,
		logger: logger.With(slog.String("component", "image_task_store")),
	}
}

// Ensure PostgresImageTaskStore implements store.ImageTaskStore interface
var _ store.ImageTaskStore = (*PostgresImageTaskStore)(nil)

// WithTx implements store.ImageTaskStore.WithTx
// A transactional store claims within the caller's transaction instead of
// opening its own.
func (s *PostgresImageTaskStore) WithTx(tx *sql.Tx) store.ImageTaskStore {
	return &PostgresImageTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

const imageTaskColumns = `id, tree_id, node_id, node_title, status, error,
	media_url, created_at, started_at, completed_at`

// Create implements store.ImageTaskStore.Create
func (s *PostgresImageTaskStore) Create(ctx context.Context, task *domain.ImageTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("image task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO image_tasks (` + imageTaskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.TreeID,
		task.NodeID,
		task.NodeTitle,
		task.Status,
		task.Error,
		task.MediaURL,
		task.CreatedAt,
		task.StartedAt,
		task.CompletedAt,
	)

	if err != nil {
		log.Error("failed to create image task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("node_id", task.NodeID.String()))
		return mapError(err)
	}

	log.Debug("image task created",
		slog.String("task_id", task.ID.String()),
		slog.String("node_id", task.NodeID.String()))
	return nil
}

// GetByID implements store.ImageTaskStore.GetByID
func (s *PostgresImageTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ImageTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + imageTaskColumns + ` FROM image_tasks WHERE id = $1`

	task, err := scanImageTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get image task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, mapError(err)
	}

	return task, nil
}

// ClaimPending implements store.ImageTaskStore.ClaimPending
// The select locks the chosen rows and skips rows locked by other claimers;
// the status update happens before the lock is released, so a row is only
// ever observed as claimed by one worker.
func (s *PostgresImageTaskStore) ClaimPending(ctx context.Context, limit int) ([]*domain.ImageTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		limit = 1
	}

	var claimed []*domain.ImageTask

	claim := func(ctx context.Context, tx *sql.Tx) error {
		query := `
			SELECT ` + imageTaskColumns + `
			FROM image_tasks
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`

		rows, err := tx.QueryContext(ctx, query, domain.ImageTaskStatusPending, limit)
		if err != nil {
			return mapError(err)
		}
		defer func() {
			if err := rows.Close(); err != nil {
				log.Error("failed to close rows", slog.String("error", err.Error()))
			}
		}()

		for rows.Next() {
			task, err := scanImageTask(rows)
			if err != nil {
				return err
			}
			claimed = append(claimed, task)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, task := range claimed {
			_, err := tx.ExecContext(ctx, `
				UPDATE image_tasks
				SET status = $1, started_at = $2
				WHERE id = $3
			`, domain.ImageTaskStatusGenerating, now, task.ID)
			if err != nil {
				return mapError(err)
			}
			task.Status = domain.ImageTaskStatusGenerating
			startedAt := now
			task.StartedAt = &startedAt
		}

		return nil
	}

	var err error
	if s.sqlDB != nil {
		err = store.RunInTransaction(ctx, s.sqlDB, claim)
	} else if tx, ok := s.db.(*sql.Tx); ok {
		err = claim(ctx, tx)
	} else {
		return nil, errors.New("image task store is not claimable without a transaction")
	}

	if err != nil {
		log.Error("failed to claim pending image tasks",
			slog.String("error", err.Error()))
		return nil, err
	}

	if len(claimed) > 0 {
		log.Debug("claimed pending image tasks", slog.Int("count", len(claimed)))
	}
	return claimed, nil
}

// ClaimByID implements store.ImageTaskStore.ClaimByID
// Returns (nil, nil) when the task is not pending anymore or a concurrent
// claimer holds its row lock.
func (s *PostgresImageTaskStore) ClaimByID(ctx context.Context, id uuid.UUID) (*domain.ImageTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var claimed *domain.ImageTask

	claim := func(ctx context.Context, tx *sql.Tx) error {
		query := `
			SELECT ` + imageTaskColumns + `
			FROM image_tasks
			WHERE id = $1 AND status = $2
			FOR UPDATE SKIP LOCKED
		`

		task, err := scanImageTask(tx.QueryRowContext(ctx, query, id, domain.ImageTaskStatusPending))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return mapError(err)
		}

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE image_tasks
			SET status = $1, started_at = $2
			WHERE id = $3
		`, domain.ImageTaskStatusGenerating, now, task.ID)
		if err != nil {
			return mapError(err)
		}

		task.Status = domain.ImageTaskStatusGenerating
		startedAt := now
		task.StartedAt = &startedAt
		claimed = task
		return nil
	}

	var err error
	if s.sqlDB != nil {
		err = store.RunInTransaction(ctx, s.sqlDB, claim)
	} else if tx, ok := s.db.(*sql.Tx); ok {
		err = claim(ctx, tx)
	} else {
		return nil, errors.New("image task store is not claimable without a transaction")
	}

	if err != nil {
		log.Error("failed to claim image task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	return claimed, nil
}

// MarkCompleted implements store.ImageTaskStore.MarkCompleted
func (s *PostgresImageTaskStore) MarkCompleted(ctx context.Context, id uuid.UUID, mediaURL string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE image_tasks
		SET status = $1, media_url = $2, error = NULL, completed_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		domain.ImageTaskStatusCompleted,
		mediaURL,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		log.Error("failed to mark image task completed",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return mapError(err)
	}

	return requireTaskRow(result, id, log)
}

// MarkFailed implements store.ImageTaskStore.MarkFailed
func (s *PostgresImageTaskStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE image_tasks
		SET status = $1, error = $2, completed_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		domain.ImageTaskStatusFailed,
		errMsg,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		log.Error("failed to mark image task failed",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return mapError(err)
	}

	return requireTaskRow(result, id, log)
}

// FailStuck implements store.ImageTaskStore.FailStuck
// Idempotent: a second immediate sweep matches no rows because the first
// one already moved them out of generating.
func (s *PostgresImageTaskStore) FailStuck(
	ctx context.Context,
	olderThan time.Duration,
	errMsg string,
) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	query := `
		UPDATE image_tasks
		SET status = $1, error = $2, completed_at = $3
		WHERE status = $4 AND started_at IS NOT NULL AND started_at < $5
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		domain.ImageTaskStatusFailed,
		errMsg,
		now,
		domain.ImageTaskStatusGenerating,
		cutoff,
	)
	if err != nil {
		log.Error("failed to sweep stuck image tasks",
			slog.String("error", err.Error()))
		return 0, mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if rowsAffected > 0 {
		log.Info("swept stuck image tasks",
			slog.Int64("count", rowsAffected),
			slog.Duration("older_than", olderThan))
	}
	return int(rowsAffected), nil
}

// ResetFailed implements store.ImageTaskStore.ResetFailed
func (s *PostgresImageTaskStore) ResetFailed(ctx context.Context, treeID uuid.UUID) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE image_tasks
		SET status = $1, error = NULL, started_at = NULL, completed_at = NULL
		WHERE tree_id = $2 AND status = $3
		RETURNING id
	`

	rows, err := s.db.QueryContext(
		ctx,
		query,
		domain.ImageTaskStatusPending,
		treeID,
		domain.ImageTaskStatusFailed,
	)
	if err != nil {
		log.Error("failed to reset failed image tasks",
			slog.String("error", err.Error()),
			slog.String("tree_id", treeID.String()))
		return nil, mapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Info("reset failed image tasks to pending",
		slog.String("tree_id", treeID.String()),
		slog.Int("count", len(ids)))
	return ids, nil
}

// DeleteCompleted implements store.ImageTaskStore.DeleteCompleted
func (s *PostgresImageTaskStore) DeleteCompleted(ctx context.Context, treeID uuid.UUID) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `DELETE FROM image_tasks WHERE tree_id = $1 AND status = $2`

	result, err := s.db.ExecContext(ctx, query, treeID, domain.ImageTaskStatusCompleted)
	if err != nil {
		log.Error("failed to delete completed image tasks",
			slog.String("error", err.Error()),
			slog.String("tree_id", treeID.String()))
		return 0, mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	log.Info("deleted completed image tasks",
		slog.String("tree_id", treeID.String()),
		slog.Int64("count", rowsAffected))
	return int(rowsAffected), nil
}

// ListByTree implements store.ImageTaskStore.ListByTree
func (s *PostgresImageTaskStore) ListByTree(
	ctx context.Context,
	treeID uuid.UUID,
	status domain.ImageTaskStatus,
	limit, offset int,
) ([]*domain.ImageTask, error) {
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
			SELECT ` + imageTaskColumns + `
			FROM image_tasks
			WHERE tree_id = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`
		rows, err = s.db.QueryContext(ctx, query, treeID, limit, offset)
	} else {
		query := `
			SELECT ` + imageTaskColumns + `
			FROM image_tasks
			WHERE tree_id = $1 AND status = $2
			ORDER BY created_at DESC
			LIMIT $3 OFFSET $4
		`
		rows, err = s.db.QueryContext(ctx, query, treeID, status, limit, offset)
	}

	if err != nil {
		log.Error("failed to list image tasks",
			slog.String("error", err.Error()),
			slog.String("tree_id", treeID.String()))
		return nil, mapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	tasks := []*domain.ImageTask{}
	for rows.Next() {
		task, err := scanImageTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tasks, nil
}

func requireTaskRow(result sql.Result, id uuid.UUID, log *slog.Logger) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return err
	}
	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

func scanImageTask(row rowScanner) (*domain.ImageTask, error) {
	var task domain.ImageTask
	var errMsg, mediaURL sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.TreeID,
		&task.NodeID,
		&task.NodeTitle,
		&task.Status,
		&errMsg,
		&mediaURL,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if errMsg.Valid {
		task.Error = &errMsg.String
	}
	if mediaURL.Valid {
		task.MediaURL = &mediaURL.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}

	return &task, nil
}

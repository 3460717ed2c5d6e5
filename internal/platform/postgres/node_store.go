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

// PostgresNodeStore implements the store.NodeStore interface
// using a PostgreSQL database as the storage backend.
type PostgresNodeStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresNodeStore creates a new PostgreSQL implementation of the
// NodeStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller.
func NewPostgresNodeStore(db store.DBTX, logger *slog.Logger) *PostgresNodeStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresNodeStore{
		db:     db,
		logger: logger.With(slog.String("component", "node_store")),
	}
}

// Ensure PostgresNodeStore implements store.NodeStore interface
var _ store.NodeStore = (*PostgresNodeStore)(nil)

// WithTx implements store.NodeStore.WithTx
func (s *PostgresNodeStore) WithTx(tx *sql.Tx) store.NodeStore {
	return &PostgresNodeStore{
		db:     tx,
		logger: s.logger,
	}
}

const nodeColumns = `id, tree_id, parent_id, side, depth, title, description,
	context, question, media_url, generated, discovered_by, discovered_at,
	visits, created_at, updated_at`

// Create implements store.NodeStore.Create
// Returns store.ErrInvalidEntity if the tree or parent doesn't exist
// (foreign key violation).
func (s *PostgresNodeStore) Create(ctx context.Context, node *domain.Node) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := node.Validate(); err != nil {
		log.Warn("node validation failed during create",
			slog.String("error", err.Error()),
			slog.String("node_id", node.ID.String()))
		return err
	}

	query := `
		INSERT INTO nodes (` + nodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		node.ID,
		node.TreeID,
		node.ParentID,
		node.Side,
		node.Depth,
		node.Title,
		node.Description,
		node.Context,
		node.Question,
		node.MediaURL,
		node.Generated,
		node.DiscoveredBy,
		node.DiscoveredAt,
		node.Visits,
		node.CreatedAt,
		node.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create node",
			slog.String("error", err.Error()),
			slog.String("node_id", node.ID.String()),
			slog.String("tree_id", node.TreeID.String()))
		return mapError(err)
	}

	log.Debug("node created",
		slog.String("node_id", node.ID.String()),
		slog.Int("depth", node.Depth))
	return nil
}

// GetByID implements store.NodeStore.GetByID
// Returns store.ErrNodeNotFound if the node does not exist.
func (s *PostgresNodeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	return s.getByID(ctx, id, false)
}

// GetByIDForUpdate implements store.NodeStore.GetByIDForUpdate
// The FOR UPDATE lock serializes concurrent expansions of the same node;
// only meaningful when the store is bound to a transaction.
func (s *PostgresNodeStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	return s.getByID(ctx, id, true)
}

func (s *PostgresNodeStore) getByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*domain.Node, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	node, err := scanNode(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("node not found", slog.String("node_id", id.String()))
			return nil, store.ErrNodeNotFound
		}
		log.Error("failed to get node by ID",
			slog.String("error", err.Error()),
			slog.String("node_id", id.String()))
		return nil, mapError(err)
	}

	return node, nil
}

// GetChildren implements store.NodeStore.GetChildren
// Children are ordered left before right.
func (s *PostgresNodeStore) GetChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Node, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE parent_id = $1
		ORDER BY side ASC
	`

	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		log.Error("failed to query children",
			slog.String("error", err.Error()),
			slog.String("parent_id", parentID.String()))
		return nil, mapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	children := []*domain.Node{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			log.Error("failed to scan child row",
				slog.String("error", err.Error()))
			return nil, err
		}
		children = append(children, node)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning rows", slog.String("error", err.Error()))
		return nil, err
	}

	return children, nil
}

// MarkGenerated implements store.NodeStore.MarkGenerated
func (s *PostgresNodeStore) MarkGenerated(ctx context.Context, id uuid.UUID, question string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE nodes
		SET generated = TRUE, question = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, question, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to mark node generated",
			slog.String("error", err.Error()),
			slog.String("node_id", id.String()))
		return mapError(err)
	}

	return s.requireRow(result, id, "mark node generated", log)
}

// UpdateMediaURL implements store.NodeStore.UpdateMediaURL
func (s *PostgresNodeStore) UpdateMediaURL(ctx context.Context, id uuid.UUID, mediaURL string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE nodes
		SET media_url = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, mediaURL, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to update node media URL",
			slog.String("error", err.Error()),
			slog.String("node_id", id.String()))
		return mapError(err)
	}

	return s.requireRow(result, id, "update media URL", log)
}

// IncrementVisits implements store.NodeStore.IncrementVisits
func (s *PostgresNodeStore) IncrementVisits(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `UPDATE nodes SET visits = visits + 1 WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		log.Error("failed to increment node visits",
			slog.String("error", err.Error()),
			slog.String("node_id", id.String()))
		return mapError(err)
	}

	return s.requireRow(result, id, "increment visits", log)
}

// FindPlaceholderNodesWithoutTasks implements
// store.NodeStore.FindPlaceholderNodesWithoutTasks
func (s *PostgresNodeStore) FindPlaceholderNodesWithoutTasks(
	ctx context.Context,
	treeID uuid.UUID,
	placeholderURL string,
) ([]*domain.Node, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + nodeColumns + `
		FROM nodes n
		WHERE n.tree_id = $1
		  AND (n.media_url IS NULL OR n.media_url = $2)
		  AND NOT EXISTS (
			SELECT 1 FROM image_tasks t WHERE t.node_id = n.id
		  )
		ORDER BY n.created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, treeID, placeholderURL)
	if err != nil {
		log.Error("failed to query placeholder nodes",
			slog.String("error", err.Error()),
			slog.String("tree_id", treeID.String()))
		return nil, mapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	var nodes []*domain.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			log.Error("failed to scan node row", slog.String("error", err.Error()))
			return nil, err
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning rows", slog.String("error", err.Error()))
		return nil, err
	}

	if nodes == nil {
		nodes = []*domain.Node{}
	}

	log.Debug("found placeholder nodes without tasks",
		slog.String("tree_id", treeID.String()),
		slog.Int("count", len(nodes)))
	return nodes, nil
}

// requireRow converts a zero-rows-affected update into ErrNodeNotFound.
func (s *PostgresNodeStore) requireRow(result sql.Result, id uuid.UUID, op string, log *slog.Logger) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("error", err.Error()),
			slog.String("node_id", id.String()))
		return err
	}
	if rowsAffected == 0 {
		log.Debug("node not found for "+op,
			slog.String("node_id", id.String()))
		return store.ErrNodeNotFound
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*domain.Node, error) {
	var node domain.Node
	var parentID uuid.NullUUID
	var side sql.NullString
	var question, mediaURL, discoveredBy sql.NullString
	var discoveredAt sql.NullTime

	err := row.Scan(
		&node.ID,
		&node.TreeID,
		&parentID,
		&side,
		&node.Depth,
		&node.Title,
		&node.Description,
		&node.Context,
		&question,
		&mediaURL,
		&node.Generated,
		&discoveredBy,
		&discoveredAt,
		&node.Visits,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		id := parentID.UUID
		node.ParentID = &id
	}
	if side.Valid {
		s := domain.Side(side.String)
		node.Side = &s
	}
	if question.Valid {
		node.Question = &question.String
	}
	if mediaURL.Valid {
		node.MediaURL = &mediaURL.String
	}
	if discoveredBy.Valid {
		node.DiscoveredBy = &discoveredBy.String
	}
	if discoveredAt.Valid {
		t := discoveredAt.Time
		node.DiscoveredAt = &t
	}

	return &node, nil
}

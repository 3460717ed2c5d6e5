package store

import (
	"context"
	"database/sql"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/google/uuid"
)

// NodeStore defines the interface for tree node persistence.
type NodeStore interface {
	// Create saves a new node to the store.
	// It handles domain validation internally.
	Create(ctx context.Context, node *domain.Node) error

	// GetByID retrieves a node by its unique ID.
	// Returns ErrNodeNotFound if the node does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error)

	// GetByIDForUpdate retrieves a node by ID with a row lock (FOR UPDATE).
	// Only meaningful inside a transaction: it serializes concurrent
	// expansions of the same node so the generated re-check is race-safe.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Node, error)

	// GetChildren retrieves the two children of a node, left first.
	// Returns an empty slice when the node has no children.
	GetChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Node, error)

	// MarkGenerated sets the node's generated flag and question.
	// Returns ErrNodeNotFound if the node does not exist.
	MarkGenerated(ctx context.Context, id uuid.UUID, question string) error

	// UpdateMediaURL replaces the node's media URL once its illustration
	// has been rendered and stored.
	UpdateMediaURL(ctx context.Context, id uuid.UUID, mediaURL string) error

	// IncrementVisits bumps the node's visit counter.
	IncrementVisits(ctx context.Context, id uuid.UUID) error

	// FindPlaceholderNodesWithoutTasks returns nodes of a tree whose media
	// URL is still the given placeholder (or null) and that have no image
	// task row at all. Used by the admin backfill operation.
	FindPlaceholderNodesWithoutTasks(
		ctx context.Context,
		treeID uuid.UUID,
		placeholderURL string,
	) ([]*domain.Node, error)

	// WithTx returns a new NodeStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) NodeStore
}

// TreeStore defines the interface for tree and generation-config reads.
// The pipeline never mutates trees; bootstrap creation exists for the
// surrounding system and tests.
type TreeStore interface {
	// Create saves a new tree with its generation config.
	Create(ctx context.Context, tree *domain.Tree) error

	// GetByID retrieves a tree (including its generation config) by ID.
	// Returns ErrTreeNotFound if the tree does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tree, error)

	// WithTx returns a new TreeStore instance bound to the transaction.
	WithTx(tx *sql.Tx) TreeStore
}

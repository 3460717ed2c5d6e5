package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/store"
	"github.com/google/uuid"
)

// TreeService bootstraps trees: a tree row with its generation config plus
// the root node, created atomically. The pipeline itself never mutates
// trees.
type TreeService struct {
	db     *sql.DB
	trees  store.TreeStore
	nodes  store.NodeStore
	logger *slog.Logger
}

// NewTreeService creates a new TreeService.
func NewTreeService(db *sql.DB, trees store.TreeStore, nodes store.NodeStore, log *slog.Logger) (*TreeService, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if trees == nil {
		return nil, fmt.Errorf("tree store cannot be nil")
	}
	if nodes == nil {
		return nil, fmt.Errorf("node store cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &TreeService{
		db:     db,
		trees:  trees,
		nodes:  nodes,
		logger: log.With(slog.String("component", "tree_service")),
	}, nil
}

// CreateTree creates a tree with its config and root node in one
// transaction. The root starts at depth 0 with the tree's placeholder image.
func (s *TreeService) CreateTree(
	ctx context.Context,
	name string,
	config domain.GenerationConfig,
	root domain.NodeContent,
) (*domain.Tree, *domain.Node, error) {
	tree, err := domain.NewTree(name, config)
	if err != nil {
		return nil, nil, err
	}

	var placeholder *string
	if config.PlaceholderMediaURL != "" {
		placeholder = &config.PlaceholderMediaURL
	}
	rootNode, err := domain.NewRootNode(tree.ID, root, placeholder)
	if err != nil {
		return nil, nil, err
	}

	txFn := func(ctx context.Context, tx *sql.Tx) error {
		if err := s.trees.WithTx(tx).Create(ctx, tree); err != nil {
			return err
		}
		return s.nodes.WithTx(tx).Create(ctx, rootNode)
	}
	if err := store.RunInTransaction(ctx, s.db, txFn); err != nil {
		return nil, nil, err
	}

	s.logger.Info("tree created",
		slog.String("tree_id", tree.ID.String()),
		slog.String("name", name),
		slog.String("root_id", rootNode.ID.String()))
	return tree, rootNode, nil
}

// GetTree returns the tree with its generation config.
func (s *TreeService) GetTree(ctx context.Context, id uuid.UUID) (*domain.Tree, error) {
	return s.trees.GetByID(ctx, id)
}

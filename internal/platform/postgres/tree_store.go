package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
	"github.com/branchvote/branchvote-api/internal/store"
	"github.com/google/uuid"
)

// PostgresTreeStore implements the store.TreeStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTreeStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTreeStore creates a new PostgreSQL implementation of the
// TreeStore interface.
func NewPostgresTreeStore(db store.DBTX, logger *slog.Logger) *PostgresTreeStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTreeStore{
		db:     db,
		logger: logger.With(slog.String("component", "tree_store")),
	}
}

// Ensure PostgresTreeStore implements store.TreeStore interface
var _ store.TreeStore = (*PostgresTreeStore)(nil)

// WithTx implements store.TreeStore.WithTx
func (s *PostgresTreeStore) WithTx(tx *sql.Tx) store.TreeStore {
	return &PostgresTreeStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.TreeStore.Create
func (s *PostgresTreeStore) Create(ctx context.Context, tree *domain.Tree) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := tree.Validate(); err != nil {
		log.Warn("tree validation failed during create",
			slog.String("error", err.Error()),
			slog.String("tree_id", tree.ID.String()))
		return err
	}

	refURLs, err := json.Marshal(tree.Config.ReferenceMediaURLs)
	if err != nil {
		return fmt.Errorf("failed to marshal reference media URLs: %w", err)
	}

	query := `
		INSERT INTO trees (
			id, name, text_model, text_system_prompt, image_model,
			image_system_prompt, reference_media_urls, placeholder_media_url,
			discovery_enabled, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.db.ExecContext(
		ctx,
		query,
		tree.ID,
		tree.Name,
		tree.Config.TextModel,
		tree.Config.TextSystemPrompt,
		tree.Config.ImageModel,
		tree.Config.ImageSystemPrompt,
		refURLs,
		tree.Config.PlaceholderMediaURL,
		tree.Config.DiscoveryEnabled,
		tree.CreatedAt,
	)

	if err != nil {
		log.Error("failed to create tree",
			slog.String("error", err.Error()),
			slog.String("tree_id", tree.ID.String()))
		return mapError(err)
	}

	log.Info("tree created",
		slog.String("tree_id", tree.ID.String()),
		slog.String("name", tree.Name))
	return nil
}

// GetByID implements store.TreeStore.GetByID
// Returns store.ErrTreeNotFound if the tree does not exist.
func (s *PostgresTreeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tree, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, name, text_model, text_system_prompt, image_model,
			image_system_prompt, reference_media_urls, placeholder_media_url,
			discovery_enabled, created_at
		FROM trees
		WHERE id = $1
	`

	var tree domain.Tree
	var refURLs []byte

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&tree.ID,
		&tree.Name,
		&tree.Config.TextModel,
		&tree.Config.TextSystemPrompt,
		&tree.Config.ImageModel,
		&tree.Config.ImageSystemPrompt,
		&refURLs,
		&tree.Config.PlaceholderMediaURL,
		&tree.Config.DiscoveryEnabled,
		&tree.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("tree not found", slog.String("tree_id", id.String()))
			return nil, store.ErrTreeNotFound
		}
		log.Error("failed to get tree by ID",
			slog.String("error", err.Error()),
			slog.String("tree_id", id.String()))
		return nil, mapError(err)
	}

	if len(refURLs) > 0 {
		if err := json.Unmarshal(refURLs, &tree.Config.ReferenceMediaURLs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reference media URLs: %w", err)
		}
	}

	return &tree, nil
}

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/branchvote/branchvote-api/internal/api/shared"
	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
)

// TreeCreator is the slice of the tree service the handler needs.
type TreeCreator interface {
	CreateTree(
		ctx context.Context,
		name string,
		config domain.GenerationConfig,
		root domain.NodeContent,
	) (*domain.Tree, *domain.Node, error)
	GetTree(ctx context.Context, id uuid.UUID) (*domain.Tree, error)
}

// TreeHandler handles tree-related HTTP requests
type TreeHandler struct {
	trees  TreeCreator
	logger *slog.Logger
}

// NewTreeHandler creates a new TreeHandler
func NewTreeHandler(trees TreeCreator, log *slog.Logger) *TreeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TreeHandler{
		trees:  trees,
		logger: log.With(slog.String("component", "tree_handler")),
	}
}

// CreateTreeRequest represents the request body for creating a tree.
type CreateTreeRequest struct {
	Name   string                  `json:"name"   validate:"required,max=256"`
	Config domain.GenerationConfig `json:"config"`
	Root   struct {
		Title       string `json:"title"       validate:"required,max=512"`
		Description string `json:"description"`
		Context     string `json:"context"`
	} `json:"root"`
}

// CreateTree handles POST /trees requests.
// It creates the tree with its generation config and the root node in one
// transaction.
func (h *TreeHandler) CreateTree(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateTreeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid tree data")
		return
	}

	tree, root, err := h.trees.CreateTree(r.Context(), req.Name, req.Config, domain.NodeContent{
		Title:       req.Root.Title,
		Description: req.Root.Description,
		Context:     req.Root.Context,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("tree created via API",
		slog.String("tree_id", tree.ID.String()),
		slog.String("name", tree.Name))

	shared.RespondWithJSON(w, r, http.StatusCreated, CreateTreeResponse{
		Tree: treeToResponse(tree),
		Root: nodeToResponse(root),
	})
}

// GetTree handles GET /trees/{id} requests.
func (h *TreeHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	treeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid tree ID")
		return
	}

	tree, err := h.trees.GetTree(r.Context(), treeID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, treeToResponse(tree))
}

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/branchvote/branchvote-api/internal/api/shared"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
	"github.com/branchvote/branchvote-api/internal/service"
)

// NodeExpander is the slice of the expansion service the handler needs.
type NodeExpander interface {
	Expand(ctx context.Context, nodeID uuid.UUID, discoveredBy string) (*service.ExpansionResult, error)
}

// NodeHandler handles node-related HTTP requests
type NodeHandler struct {
	expander NodeExpander
	logger   *slog.Logger
}

// NewNodeHandler creates a new NodeHandler
func NewNodeHandler(expander NodeExpander, log *slog.Logger) *NodeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &NodeHandler{
		expander: expander,
		logger:   log.With(slog.String("component", "node_handler")),
	}
}

// ExpandRequest represents the request body for expanding a node.
// DiscoveredBy is the voter who reached the node; empty means the call is
// internal (pre-generation) and records no discoverer.
type ExpandRequest struct {
	DiscoveredBy string `json:"discovered_by" validate:"max=128"`
}

// Expand handles POST /nodes/{id}/expand requests.
// It ensures the node's two children exist, generating them on first arrival,
// and returns the question plus both children.
func (h *NodeHandler) Expand(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	nodeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid node ID")
		return
	}

	// The body is optional: a bare POST expands without a discoverer.
	var req ExpandRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := shared.ValidateRequest(req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid discoverer")
			return
		}
	}

	log.Debug("expanding node",
		slog.String("node_id", nodeID.String()),
		slog.Bool("has_discoverer", req.DiscoveredBy != ""))

	result, err := h.expander.Expand(r.Context(), nodeID, req.DiscoveredBy)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	response := ExpandResponse{
		Node:             nodeToResponse(result.Node),
		Question:         result.Question,
		Left:             nodeToResponse(result.Left),
		Right:            nodeToResponse(result.Right),
		AlreadyGenerated: result.AlreadyGenerated,
	}

	status := http.StatusCreated
	if result.AlreadyGenerated {
		status = http.StatusOK
	}
	shared.RespondWithJSON(w, r, status, response)
}

package generation

import (
	"context"

	"github.com/branchvote/branchvote-api/internal/domain"
)

// ChildSet is the result of one text generation call: the binary question
// asked at the parent plus the content of the two children that answer it.
type ChildSet struct {
	Question string             `json:"question"`
	Left     domain.NodeContent `json:"left"`
	Right    domain.NodeContent `json:"right"`
}

// Generator defines the interface for generating node text from the ancestor
// path. This interface serves as a boundary between the expansion pipeline
// and external LLM services.
type Generator interface {
	// GenerateChildren creates the question and both children for the last
	// node of path, using the tree's generation config for model selection
	// and system prompt. path is ordered root first and always ends with the
	// node being expanded.
	//
	// Returns ErrContentBlocked when safety filters reject the request,
	// ErrInvalidResponse when the model output cannot be parsed, and
	// ErrTransientFailure for errors worth retrying.
	GenerateChildren(
		ctx context.Context,
		cfg *domain.GenerationConfig,
		path []domain.PathStep,
	) (*ChildSet, error)
}

// ImageGenerator defines the interface for rendering a node's illustration.
// Implementations are expected to persist the rendered bytes and return a
// stable public URL.
type ImageGenerator interface {
	// GenerateImage renders an illustration for a node and returns the public
	// URL of the stored image.
	GenerateImage(
		ctx context.Context,
		cfg *domain.GenerationConfig,
		nodeID string,
		content domain.NodeContent,
	) (string, error)
}

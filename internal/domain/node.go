package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Side identifies which branch of its parent a node occupies.
type Side string

// Possible side values. The root node has no side.
const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Common validation errors for Node
var (
	ErrEmptyNodeID      = errors.New("node ID cannot be empty")
	ErrEmptyNodeTreeID  = errors.New("node tree ID cannot be empty")
	ErrEmptyNodeTitle   = errors.New("node title cannot be empty")
	ErrRootWithSide     = errors.New("root node cannot have a side")
	ErrChildWithoutSide = errors.New("non-root node must have a side")
)

// Node is one vertex of the binary decision tree a user traverses.
// A node's Generated flag is true iff it has exactly two persisted children,
// one left and one right. Depth is always parent depth + 1; the root sits at
// depth 0 with no parent and no side.
type Node struct {
	ID           uuid.UUID  `json:"id"`
	TreeID       uuid.UUID  `json:"tree_id"`
	ParentID     *uuid.UUID `json:"parent_id,omitempty"`
	Side         *Side      `json:"side,omitempty"`
	Depth        int        `json:"depth"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Context      string     `json:"context"`
	Question     *string    `json:"question,omitempty"`
	MediaURL     *string    `json:"media_url,omitempty"`
	Generated    bool       `json:"generated"`
	DiscoveredBy *string    `json:"discovered_by,omitempty"`
	DiscoveredAt *time.Time `json:"discovered_at,omitempty"`
	Visits       int        `json:"visits"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NodeContent carries the generated text for one child node.
type NodeContent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

// NewRootNode creates the root node of a tree at depth 0.
// Returns an error if validation fails.
func NewRootNode(treeID uuid.UUID, content NodeContent, mediaURL *string) (*Node, error) {
	now := time.Now().UTC()
	node := &Node{
		ID:          uuid.New(),
		TreeID:      treeID,
		Depth:       0,
		Title:       content.Title,
		Description: content.Description,
		Context:     content.Context,
		MediaURL:    mediaURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := node.Validate(); err != nil {
		return nil, err
	}
	return node, nil
}

// NewChildNode creates a child of parent on the given side, one level deeper.
// discoveredBy is nil for pre-generated nodes: a pre-generated node has no
// discoverer until a real user reaches it.
func NewChildNode(
	parent *Node,
	side Side,
	content NodeContent,
	mediaURL *string,
	discoveredBy *string,
) (*Node, error) {
	now := time.Now().UTC()
	parentID := parent.ID
	node := &Node{
		ID:          uuid.New(),
		TreeID:      parent.TreeID,
		ParentID:    &parentID,
		Side:        &side,
		Depth:       parent.Depth + 1,
		Title:       content.Title,
		Description: content.Description,
		Context:     content.Context,
		MediaURL:    mediaURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if discoveredBy != nil && *discoveredBy != "" {
		node.DiscoveredBy = discoveredBy
		discoveredAt := now
		node.DiscoveredAt = &discoveredAt
	}

	if err := node.Validate(); err != nil {
		return nil, err
	}
	return node, nil
}

// Validate checks if the Node has valid data.
// Returns an error if any field fails validation.
func (n *Node) Validate() error {
	if n.ID == uuid.Nil {
		return ErrEmptyNodeID
	}

	if n.TreeID == uuid.Nil {
		return ErrEmptyNodeTreeID
	}

	if n.Title == "" {
		return ErrEmptyNodeTitle
	}

	if n.ParentID == nil {
		if n.Side != nil {
			return ErrRootWithSide
		}
		if n.Depth != 0 {
			return ErrInvalidDepth
		}
		return nil
	}

	if n.Side == nil {
		return ErrChildWithoutSide
	}
	if *n.Side != SideLeft && *n.Side != SideRight {
		return ErrInvalidSide
	}
	if n.Depth < 1 {
		return ErrInvalidDepth
	}

	return nil
}

// IsRoot reports whether the node is the root of its tree.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// MarkGenerated records that the node's two children exist and stores the
// question used to choose between them. Updates the UpdatedAt timestamp.
func (n *Node) MarkGenerated(question string) {
	n.Generated = true
	n.Question = &question
	n.UpdatedAt = time.Now().UTC()
}

// PathStep is one entry of the ancestor path handed to text generation:
// the node's text plus which side it sits on relative to its parent.
type PathStep struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Context     string `json:"context"`
	Side        *Side  `json:"side,omitempty"`
}

// PathStepFromNode projects a node onto its path representation.
func PathStepFromNode(n *Node) PathStep {
	return PathStep{
		Title:       n.Title,
		Description: n.Description,
		Context:     n.Context,
		Side:        n.Side,
	}
}

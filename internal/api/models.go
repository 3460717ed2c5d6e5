package api

import (
	"time"

	"github.com/branchvote/branchvote-api/internal/domain"
)

// NodeResponse represents the response data for a node
type NodeResponse struct {
	ID           string     `json:"id"`
	TreeID       string     `json:"tree_id"`
	ParentID     *string    `json:"parent_id,omitempty"`
	Side         *string    `json:"side,omitempty"`
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
}

// ExpandResponse represents the result of expanding a node: the question
// asked at the node and its two children.
type ExpandResponse struct {
	Node             NodeResponse `json:"node"`
	Question         string       `json:"question"`
	Left             NodeResponse `json:"left"`
	Right            NodeResponse `json:"right"`
	AlreadyGenerated bool         `json:"already_generated"`
}

// TreeResponse represents the response data for a tree
type TreeResponse struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Config    domain.GenerationConfig `json:"config"`
	CreatedAt time.Time               `json:"created_at"`
}

// CreateTreeResponse is the response for tree creation: the tree plus its
// freshly created root node.
type CreateTreeResponse struct {
	Tree TreeResponse `json:"tree"`
	Root NodeResponse `json:"root"`
}

// ImageTaskResponse represents the response data for an image task
type ImageTaskResponse struct {
	ID          string     `json:"id"`
	TreeID      string     `json:"tree_id"`
	NodeID      string     `json:"node_id"`
	NodeTitle   string     `json:"node_title"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	MediaURL    *string    `json:"media_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobResponse represents the response data for a queued job
type JobResponse struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// nodeToResponse transforms a domain node into its response representation.
func nodeToResponse(n *domain.Node) NodeResponse {
	resp := NodeResponse{
		ID:           n.ID.String(),
		TreeID:       n.TreeID.String(),
		Depth:        n.Depth,
		Title:        n.Title,
		Description:  n.Description,
		Context:      n.Context,
		Question:     n.Question,
		MediaURL:     n.MediaURL,
		Generated:    n.Generated,
		DiscoveredBy: n.DiscoveredBy,
		DiscoveredAt: n.DiscoveredAt,
		Visits:       n.Visits,
		CreatedAt:    n.CreatedAt,
	}
	if n.ParentID != nil {
		parentID := n.ParentID.String()
		resp.ParentID = &parentID
	}
	if n.Side != nil {
		side := string(*n.Side)
		resp.Side = &side
	}
	return resp
}

// treeToResponse transforms a domain tree into its response representation.
func treeToResponse(t *domain.Tree) TreeResponse {
	return TreeResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		Config:    t.Config,
		CreatedAt: t.CreatedAt,
	}
}

// taskToResponse transforms a domain image task into its response representation.
func taskToResponse(t *domain.ImageTask) ImageTaskResponse {
	return ImageTaskResponse{
		ID:          t.ID.String(),
		TreeID:      t.TreeID.String(),
		NodeID:      t.NodeID.String(),
		NodeTitle:   t.NodeTitle,
		Status:      string(t.Status),
		Error:       t.Error,
		MediaURL:    t.MediaURL,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// jobToResponse transforms a domain job into its response representation.
func jobToResponse(j *domain.Job) JobResponse {
	return JobResponse{
		ID:          j.ID.String(),
		Type:        j.Type,
		Status:      string(j.Status),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

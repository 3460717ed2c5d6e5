package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ImageTaskStatus represents the processing state of an illustration task.
type ImageTaskStatus string

// Possible image task status values
const (
	ImageTaskStatusPending    ImageTaskStatus = "pending"
	ImageTaskStatusGenerating ImageTaskStatus = "generating"
	ImageTaskStatusCompleted  ImageTaskStatus = "completed"
	ImageTaskStatusFailed     ImageTaskStatus = "failed"
)

// Common validation errors for ImageTask
var (
	ErrEmptyTaskID     = errors.New("image task ID cannot be empty")
	ErrEmptyTaskTreeID = errors.New("image task tree ID cannot be empty")
	ErrEmptyTaskNodeID = errors.New("image task node ID cannot be empty")
)

// ImageTask is one illustration-generation work item tied to a single node.
// A node may accumulate several tasks over its lifetime (retries, backfills)
// but the claiming protocol guarantees at most one is generating at a time.
type ImageTask struct {
	ID          uuid.UUID       `json:"id"`
	TreeID      uuid.UUID       `json:"tree_id"`
	NodeID      uuid.UUID       `json:"node_id"`
	NodeTitle   string          `json:"node_title"`
	Status      ImageTaskStatus `json:"status"`
	Error       *string         `json:"error,omitempty"`
	MediaURL    *string         `json:"media_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewImageTask creates a pending illustration task for the given node.
// Returns an error if validation fails.
func NewImageTask(node *Node) (*ImageTask, error) {
	task := &ImageTask{
		ID:        uuid.New(),
		TreeID:    node.TreeID,
		NodeID:    node.ID,
		NodeTitle: node.Title,
		Status:    ImageTaskStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks if the ImageTask has valid data.
func (t *ImageTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.TreeID == uuid.Nil {
		return ErrEmptyTaskTreeID
	}
	if t.NodeID == uuid.Nil {
		return ErrEmptyTaskNodeID
	}
	if !isValidImageTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}
	return nil
}

// CanTransitionTo reports whether moving to the target status is allowed by
// the task state machine: pending -> generating -> completed|failed, plus the
// operator-initiated failed -> pending retry.
func (t *ImageTask) CanTransitionTo(target ImageTaskStatus) bool {
	switch t.Status {
	case ImageTaskStatusPending:
		return target == ImageTaskStatusGenerating
	case ImageTaskStatusGenerating:
		return target == ImageTaskStatusCompleted || target == ImageTaskStatusFailed
	case ImageTaskStatusFailed:
		return target == ImageTaskStatusPending
	default:
		return false
	}
}

// isValidImageTaskStatus checks if the given status is a valid ImageTaskStatus.
func isValidImageTaskStatus(status ImageTaskStatus) bool {
	switch status {
	case ImageTaskStatusPending, ImageTaskStatusGenerating,
		ImageTaskStatusCompleted, ImageTaskStatusFailed:
		return true
	default:
		return false
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
	"github.com/branchvote/branchvote-api/internal/store"
	"github.com/google/uuid"
)

// Pre-generation modes. Queue mode chains work through the persistent job
// queue and survives process restarts; inline mode runs the whole wave on
// in-process worker goroutines.
const (
	PregenModeQueue  = "queue"
	PregenModeInline = "inline"
)

// JobTypePregenerate is the job queue type carrying pre-generation work.
const JobTypePregenerate = "pregenerate"

// PregenPayload is the payload of a pregenerate job: the node to expand and
// how many further levels to descend.
type PregenPayload struct {
	NodeID uuid.UUID `json:"node_id"`
	Depth  int       `json:"depth"`
}

// PregenServiceError is a custom error type for pre-generation errors.
type PregenServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for PregenServiceError.
func (e *PregenServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pregen service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("pregen service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *PregenServiceError) Unwrap() error {
	return e.Err
}

// Expander is the subset of the expansion service the scheduler needs.
type Expander interface {
	Expand(ctx context.Context, nodeID uuid.UUID, discoveredBy string) (*ExpansionResult, error)
}

// Runner executes continuations on background goroutines with a detached
// context, so pre-generation outlives the request that seeded it.
type Runner interface {
	Submit(fn func(ctx context.Context)) error
}

// PregenService expands descendants of a node in the background, bounded by
// a depth budget. It implements ContinuationScheduler for the expansion
// service.
type PregenService struct {
	expander Expander
	jobs     store.JobStore
	runner   Runner
	mode     string
	logger   *slog.Logger
}

// NewPregenService creates a new PregenService. In queue mode jobs must be
// non-nil; in inline mode runner must be non-nil.
func NewPregenService(
	expander Expander,
	jobs store.JobStore,
	runner Runner,
	mode string,
	log *slog.Logger,
) (*PregenService, error) {
	if expander == nil {
		return nil, fmt.Errorf("expander cannot be nil")
	}
	switch mode {
	case PregenModeQueue:
		if jobs == nil {
			return nil, fmt.Errorf("job store cannot be nil in queue mode")
		}
	case PregenModeInline:
		if runner == nil {
			return nil, fmt.Errorf("runner cannot be nil in inline mode")
		}
	default:
		return nil, fmt.Errorf("unknown pregen mode %q", mode)
	}
	if log == nil {
		log = slog.Default()
	}

	return &PregenService{
		expander: expander,
		jobs:     jobs,
		runner:   runner,
		mode:     mode,
		logger:   log.With(slog.String("component", "pregen_service")),
	}, nil
}

// Ensure PregenService implements ContinuationScheduler
var _ ContinuationScheduler = (*PregenService)(nil)

// Schedule implements ContinuationScheduler. depth levels of expansion
// remain below the node; zero or negative depth is a no-op.
func (s *PregenService) Schedule(ctx context.Context, nodeID uuid.UUID, depth int) error {
	if depth <= 0 {
		return nil
	}

	switch s.mode {
	case PregenModeQueue:
		// NewJob serializes the payload itself; handing it pre-marshalled
		// bytes would wrap them in a base64 JSON string the handler cannot
		// decode.
		job, err := domain.NewJob(JobTypePregenerate,
			PregenPayload{NodeID: nodeID, Depth: depth}, domain.DefaultJobMaxAttempts)
		if err != nil {
			return &PregenServiceError{Operation: "schedule", Message: "failed to build job", Err: err}
		}
		return s.jobs.Enqueue(ctx, job)

	case PregenModeInline:
		return s.runner.Submit(func(runCtx context.Context) {
			if err := s.ExpandDescendants(runCtx, nodeID, depth); err != nil {
				s.logger.Warn("inline pre-generation failed",
					slog.String("node_id", nodeID.String()),
					slog.String("error", err.Error()))
			}
		})
	}

	return fmt.Errorf("unknown pregen mode %q", s.mode)
}

// ExpandDescendants expands the node and schedules its children for further
// expansion until the depth budget is spent. Failure of one branch never
// stops the sibling; the errors are joined and reported to the caller.
//
// Expansion runs with an empty discoverer: pre-generated nodes have no
// discoverer until a real user reaches them.
func (s *PregenService) ExpandDescendants(ctx context.Context, nodeID uuid.UUID, depth int) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if depth <= 0 {
		return nil
	}

	result, err := s.expander.Expand(ctx, nodeID, "")
	if err != nil {
		// A tree that disables discovery mid-flight just stops expanding.
		if errors.Is(err, ErrDiscoveryDisabled) {
			log.Debug("pre-generation stopped: discovery disabled",
				slog.String("node_id", nodeID.String()))
			return nil
		}
		return err
	}

	log.Debug("pre-generated children",
		slog.String("node_id", nodeID.String()),
		slog.Int("remaining_depth", depth-1),
		slog.Bool("already_generated", result.AlreadyGenerated))

	if depth-1 <= 0 {
		return nil
	}

	var errs []error
	for _, child := range []*domain.Node{result.Left, result.Right} {
		if child == nil {
			continue
		}
		if err := s.Schedule(ctx, child.ID, depth-1); err != nil {
			log.Warn("failed to schedule child pre-generation",
				slog.String("node_id", child.ID.String()),
				slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleJob is the job queue handler for pregenerate jobs.
func (s *PregenService) HandleJob(ctx context.Context, payload json.RawMessage) error {
	var p PregenPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return &PregenServiceError{Operation: "handle_job", Message: "malformed payload", Err: err}
	}
	return s.ExpandDescendants(ctx, p.NodeID, p.Depth)
}

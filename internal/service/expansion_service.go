package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/generation"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
	"github.com/branchvote/branchvote-api/internal/store"
	"github.com/google/uuid"
)

// ExpansionServiceError is a custom error type for expansion service errors.
type ExpansionServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for ExpansionServiceError.
func (e *ExpansionServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("expansion service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("expansion service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ExpansionServiceError) Unwrap() error {
	return e.Err
}

// NewExpansionServiceError creates a new ExpansionServiceError.
func NewExpansionServiceError(operation, message string, err error) *ExpansionServiceError {
	return &ExpansionServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// ContinuationScheduler seeds background pre-generation of a node's
// descendants after a successful expansion. depth is how many further levels
// of expansion remain below the scheduled node.
type ContinuationScheduler interface {
	Schedule(ctx context.Context, nodeID uuid.UUID, depth int) error
}

// StorageChecker is the write+read health probe of the media storage backend.
type StorageChecker interface {
	Check(ctx context.Context) error
}

// ExpansionResult is the outcome of one Expand call: the parent with its
// question and both children. AlreadyGenerated is true when the children
// existed before the call (including the losing side of an expansion race).
type ExpansionResult struct {
	Node             *domain.Node
	Question         string
	Left             *domain.Node
	Right            *domain.Node
	AlreadyGenerated bool
}

// ExpansionService creates a node's two children exactly once under
// concurrent access, and hands follow-up work (image tasks, pre-generation)
// to the background pipeline after commit.
type ExpansionService struct {
	db           *sql.DB
	trees        store.TreeStore
	nodes        store.NodeStore
	tasks        store.ImageTaskStore
	generator    generation.Generator
	checker      StorageChecker
	scheduler    ContinuationScheduler
	runner       Runner
	preloadDepth int
	logger       *slog.Logger
}

// NewExpansionService creates a new ExpansionService.
// It returns an error if any of the required dependencies are nil.
func NewExpansionService(
	db *sql.DB,
	trees store.TreeStore,
	nodes store.NodeStore,
	tasks store.ImageTaskStore,
	generator generation.Generator,
	checker StorageChecker,
	preloadDepth int,
	log *slog.Logger,
) (*ExpansionService, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if trees == nil {
		return nil, fmt.Errorf("tree store cannot be nil")
	}
	if nodes == nil {
		return nil, fmt.Errorf("node store cannot be nil")
	}
	if tasks == nil {
		return nil, fmt.Errorf("image task store cannot be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &ExpansionService{
		db:           db,
		trees:        trees,
		nodes:        nodes,
		tasks:        tasks,
		generator:    generator,
		checker:      checker,
		preloadDepth: preloadDepth,
		logger:       log.With(slog.String("component", "expansion_service")),
	}, nil
}

// SetScheduler binds the continuation scheduler. Called once during wiring;
// the scheduler depends on this service, so it cannot be a constructor
// argument.
func (s *ExpansionService) SetScheduler(scheduler ContinuationScheduler) {
	s.scheduler = scheduler
}

// SetRunner binds the background runner that carries post-commit follow-up
// work. Without a runner the dispatch runs on the caller's goroutine, which
// suits the queue worker: its jobs are already off any request path.
func (s *ExpansionService) SetRunner(runner Runner) {
	s.runner = runner
}

// Expand returns the two children of the node, creating them if they do not
// exist yet. discoveredBy is the opaque identity of the requesting user;
// empty for background pre-generation.
//
// Reading an already-generated node performs no writes beyond the visit
// counter. Creating children happens inside a transaction that re-reads the
// parent under a row lock, so two concurrent expansions of the same node
// produce exactly one pair: the loser observes generated=true after the
// winner commits and returns the winner's children.
func (s *ExpansionService) Expand(
	ctx context.Context,
	nodeID uuid.UUID,
	discoveredBy string,
) (*ExpansionResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	node, err := s.nodes.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	tree, err := s.trees.GetByID(ctx, node.TreeID)
	if err != nil {
		return nil, err
	}

	// Fast path: children already exist, no generation needed.
	if node.Generated {
		result, err := s.loadExisting(ctx, node)
		if err != nil {
			return nil, err
		}
		if err := s.nodes.IncrementVisits(ctx, nodeID); err != nil {
			log.Warn("failed to increment node visits",
				slog.String("node_id", nodeID.String()),
				slog.String("error", err.Error()))
		}
		return result, nil
	}

	if !tree.Config.DiscoveryEnabled {
		return nil, ErrDiscoveryDisabled
	}

	path, err := s.buildPath(ctx, node)
	if err != nil {
		return nil, NewExpansionServiceError("expand", "failed to build ancestor path", err)
	}

	// Text generation runs outside the transaction: it is slow and must not
	// hold row locks. If we lose the race below, this output is discarded.
	childSet, err := s.generator.GenerateChildren(ctx, &tree.Config, path)
	if err != nil {
		return nil, NewExpansionServiceError("expand", "text generation failed", err)
	}

	result, err := s.commitChildren(ctx, nodeID, tree, childSet, discoveredBy)
	if err != nil {
		return nil, err
	}

	if !result.AlreadyGenerated {
		s.dispatchFollowUps(ctx, tree, result)
	}

	return result, nil
}

// loadExisting builds the result for a node whose children already exist.
func (s *ExpansionService) loadExisting(ctx context.Context, node *domain.Node) (*ExpansionResult, error) {
	children, err := s.nodes.GetChildren(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	if len(children) != 2 {
		return nil, NewExpansionServiceError("expand",
			fmt.Sprintf("generated node has %d children, want 2", len(children)), nil)
	}

	result := &ExpansionResult{Node: node, AlreadyGenerated: true}
	if node.Question != nil {
		result.Question = *node.Question
	}
	for _, child := range children {
		if child.Side != nil && *child.Side == domain.SideRight {
			result.Right = child
		} else {
			result.Left = child
		}
	}
	return result, nil
}

// buildPath walks from the node up to the root and returns the path root
// first, ending with the node itself.
func (s *ExpansionService) buildPath(ctx context.Context, node *domain.Node) ([]domain.PathStep, error) {
	steps := []domain.PathStep{domain.PathStepFromNode(node)}

	current := node
	for current.ParentID != nil {
		parent, err := s.nodes.GetByID(ctx, *current.ParentID)
		if err != nil {
			return nil, err
		}
		steps = append(steps, domain.PathStepFromNode(parent))
		current = parent
	}

	// Reverse to root-first order.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps, nil
}

// commitChildren re-reads the parent under a row lock and creates the
// children unless a concurrent expansion already did.
func (s *ExpansionService) commitChildren(
	ctx context.Context,
	nodeID uuid.UUID,
	tree *domain.Tree,
	childSet *generation.ChildSet,
	discoveredBy string,
) (*ExpansionResult, error) {
	var result *ExpansionResult

	txFn := func(ctx context.Context, tx *sql.Tx) error {
		txNodes := s.nodes.WithTx(tx)

		locked, err := txNodes.GetByIDForUpdate(ctx, nodeID)
		if err != nil {
			return err
		}

		if locked.Generated {
			// Lost the race: the lock released by the winner's commit reveals
			// its children. Not an error, just the no-op path.
			children, err := txNodes.GetChildren(ctx, nodeID)
			if err != nil {
				return err
			}
			if len(children) != 2 {
				return NewExpansionServiceError("expand",
					fmt.Sprintf("generated node has %d children, want 2", len(children)), nil)
			}
			result = &ExpansionResult{Node: locked, AlreadyGenerated: true}
			if locked.Question != nil {
				result.Question = *locked.Question
			}
			for _, child := range children {
				if child.Side != nil && *child.Side == domain.SideRight {
					result.Right = child
				} else {
					result.Left = child
				}
			}
			return nil
		}

		var placeholder *string
		if tree.Config.PlaceholderMediaURL != "" {
			placeholder = &tree.Config.PlaceholderMediaURL
		}
		var discoverer *string
		if discoveredBy != "" {
			discoverer = &discoveredBy
		}

		left, err := domain.NewChildNode(locked, domain.SideLeft, childSet.Left, placeholder, discoverer)
		if err != nil {
			return err
		}
		right, err := domain.NewChildNode(locked, domain.SideRight, childSet.Right, placeholder, discoverer)
		if err != nil {
			return err
		}

		if err := txNodes.Create(ctx, left); err != nil {
			return err
		}
		if err := txNodes.Create(ctx, right); err != nil {
			return err
		}
		if err := txNodes.MarkGenerated(ctx, nodeID, childSet.Question); err != nil {
			return err
		}
		locked.MarkGenerated(childSet.Question)

		result = &ExpansionResult{
			Node:     locked,
			Question: childSet.Question,
			Left:     left,
			Right:    right,
		}
		return nil
	}

	if err := store.RunInTransaction(ctx, s.db, txFn); err != nil {
		return nil, err
	}
	return result, nil
}

// dispatchFollowUps submits the follow-up work for freshly created children
// to the runner, so the expansion response never waits on the storage probe
// or task creation. Failures here never fail the expansion; the backfill and
// pregen paths repair anything missed.
func (s *ExpansionService) dispatchFollowUps(ctx context.Context, tree *domain.Tree, result *ExpansionResult) {
	if s.runner == nil {
		s.runFollowUps(ctx, tree, result)
		return
	}
	if err := s.runner.Submit(func(runCtx context.Context) {
		s.runFollowUps(runCtx, tree, result)
	}); err != nil {
		log := logger.FromContextOrDefault(ctx, s.logger)
		log.Warn("failed to submit follow-up dispatch",
			slog.String("node_id", result.Node.ID.String()),
			slog.String("error", err.Error()))
	}
}

// runFollowUps hands the children to the background pipeline: image tasks
// for their illustrations and continuation jobs for deeper pre-generation.
func (s *ExpansionService) runFollowUps(ctx context.Context, tree *domain.Tree, result *ExpansionResult) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	s.scheduleImageTasks(ctx, result.Left, result.Right)

	if s.scheduler == nil || s.preloadDepth <= 1 {
		return
	}
	for _, child := range []*domain.Node{result.Left, result.Right} {
		if err := s.scheduler.Schedule(ctx, child.ID, s.preloadDepth-1); err != nil {
			log.Warn("failed to schedule pre-generation",
				slog.String("node_id", child.ID.String()),
				slog.String("error", err.Error()))
		}
	}
}

// scheduleImageTasks creates pending image tasks for both children after
// probing the storage backend. When the probe fails, no tasks are created:
// the nodes keep their placeholder and backfill picks them up later.
func (s *ExpansionService) scheduleImageTasks(ctx context.Context, children ...*domain.Node) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if s.checker != nil {
		if err := s.checker.Check(ctx); err != nil {
			log.Warn("storage probe failed, skipping image task creation",
				slog.String("error", err.Error()))
			return
		}
	}

	for _, child := range children {
		task, err := domain.NewImageTask(child)
		if err != nil {
			log.Error("failed to build image task",
				slog.String("node_id", child.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if err := s.tasks.Create(ctx, task); err != nil {
			log.Error("failed to create image task",
				slog.String("node_id", child.ID.String()),
				slog.String("error", err.Error()))
		}
	}
}

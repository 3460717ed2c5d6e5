package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/generation"
	"github.com/branchvote/branchvote-api/internal/store"
	"github.com/google/uuid"
)

// In-memory fakes for the store interfaces. WithTx returns the fake itself:
// transactional behavior is covered by the postgres store tests.

type fakeNodeStore struct {
	mu            sync.Mutex
	nodes         map[uuid.UUID]*domain.Node
	created       []*domain.Node
	visits        map[uuid.UUID]int
	placeholder   []*domain.Node
	forUpdateHook func(id uuid.UUID)
}

func newFakeNodeStore(nodes ...*domain.Node) *fakeNodeStore {
	s := &fakeNodeStore{
		nodes:  make(map[uuid.UUID]*domain.Node),
		visits: make(map[uuid.UUID]int),
	}
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	return s
}

func (s *fakeNodeStore) Create(ctx context.Context, node *domain.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = node
	s.created = append(s.created, node)
	return nil
}

func (s *fakeNodeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, store.ErrNodeNotFound
	}
	return node, nil
}

func (s *fakeNodeStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	if s.forUpdateHook != nil {
		s.forUpdateHook(id)
	}
	return s.GetByID(ctx, id)
}

func (s *fakeNodeStore) GetChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	children := []*domain.Node{}
	for _, n := range s.nodes {
		if n.ParentID != nil && *n.ParentID == parentID {
			children = append(children, n)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		var si, sj string
		if children[i].Side != nil {
			si = string(*children[i].Side)
		}
		if children[j].Side != nil {
			sj = string(*children[j].Side)
		}
		return si < sj // "left" sorts before "right"
	})
	return children, nil
}

func (s *fakeNodeStore) MarkGenerated(ctx context.Context, id uuid.UUID, question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return store.ErrNodeNotFound
	}
	node.MarkGenerated(question)
	return nil
}

func (s *fakeNodeStore) UpdateMediaURL(ctx context.Context, id uuid.UUID, mediaURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return store.ErrNodeNotFound
	}
	node.MediaURL = &mediaURL
	return nil
}

func (s *fakeNodeStore) IncrementVisits(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits[id]++
	return nil
}

func (s *fakeNodeStore) FindPlaceholderNodesWithoutTasks(
	ctx context.Context,
	treeID uuid.UUID,
	placeholderURL string,
) ([]*domain.Node, error) {
	return s.placeholder, nil
}

func (s *fakeNodeStore) WithTx(tx *sql.Tx) store.NodeStore { return s }

type fakeTreeStore struct {
	trees map[uuid.UUID]*domain.Tree
}

func newFakeTreeStore(trees ...*domain.Tree) *fakeTreeStore {
	s := &fakeTreeStore{trees: make(map[uuid.UUID]*domain.Tree)}
	for _, t := range trees {
		s.trees[t.ID] = t
	}
	return s
}

func (s *fakeTreeStore) Create(ctx context.Context, tree *domain.Tree) error {
	s.trees[tree.ID] = tree
	return nil
}

func (s *fakeTreeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tree, error) {
	tree, ok := s.trees[id]
	if !ok {
		return nil, store.ErrTreeNotFound
	}
	return tree, nil
}

func (s *fakeTreeStore) WithTx(tx *sql.Tx) store.TreeStore { return s }

type fakeImageTaskStore struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*domain.ImageTask
	created []*domain.ImageTask
}

func newFakeImageTaskStore(tasks ...*domain.ImageTask) *fakeImageTaskStore {
	s := &fakeImageTaskStore{tasks: make(map[uuid.UUID]*domain.ImageTask)}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *fakeImageTaskStore) Create(ctx context.Context, task *domain.ImageTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	s.created = append(s.created, task)
	return nil
}

func (s *fakeImageTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ImageTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task, nil
}

func (s *fakeImageTaskStore) ClaimPending(ctx context.Context, limit int) ([]*domain.ImageTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := []*domain.ImageTask{}
	now := time.Now().UTC()
	for _, task := range s.tasks {
		if len(claimed) >= limit {
			break
		}
		if task.Status == domain.ImageTaskStatusPending {
			task.Status = domain.ImageTaskStatusGenerating
			started := now
			task.StartedAt = &started
			claimed = append(claimed, task)
		}
	}
	return claimed, nil
}

func (s *fakeImageTaskStore) ClaimByID(ctx context.Context, id uuid.UUID) (*domain.ImageTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Status != domain.ImageTaskStatusPending {
		return nil, nil
	}
	task.Status = domain.ImageTaskStatusGenerating
	started := time.Now().UTC()
	task.StartedAt = &started
	return task, nil
}

func (s *fakeImageTaskStore) MarkCompleted(ctx context.Context, id uuid.UUID, mediaURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Status = domain.ImageTaskStatusCompleted
	task.MediaURL = &mediaURL
	task.Error = nil
	return nil
}

func (s *fakeImageTaskStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Status = domain.ImageTaskStatusFailed
	task.Error = &errMsg
	return nil
}

func (s *fakeImageTaskStore) FailStuck(ctx context.Context, olderThan time.Duration, errMsg string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	count := 0
	for _, task := range s.tasks {
		if task.Status == domain.ImageTaskStatusGenerating &&
			task.StartedAt != nil && task.StartedAt.Before(cutoff) {
			task.Status = domain.ImageTaskStatusFailed
			msg := errMsg
			task.Error = &msg
			count++
		}
	}
	return count, nil
}

func (s *fakeImageTaskStore) ResetFailed(ctx context.Context, treeID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []uuid.UUID{}
	for _, task := range s.tasks {
		if task.TreeID == treeID && task.Status == domain.ImageTaskStatusFailed {
			task.Status = domain.ImageTaskStatusPending
			task.Error = nil
			task.StartedAt = nil
			task.CompletedAt = nil
			ids = append(ids, task.ID)
		}
	}
	return ids, nil
}

func (s *fakeImageTaskStore) DeleteCompleted(ctx context.Context, treeID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, task := range s.tasks {
		if task.TreeID == treeID && task.Status == domain.ImageTaskStatusCompleted {
			delete(s.tasks, id)
			count++
		}
	}
	return count, nil
}

func (s *fakeImageTaskStore) ListByTree(
	ctx context.Context,
	treeID uuid.UUID,
	status domain.ImageTaskStatus,
	limit, offset int,
) ([]*domain.ImageTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []*domain.ImageTask{}
	for _, task := range s.tasks {
		if task.TreeID != treeID {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		matched = append(matched, task)
	}
	if offset >= len(matched) {
		return []*domain.ImageTask{}, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *fakeImageTaskStore) WithTx(tx *sql.Tx) store.ImageTaskStore { return s }

type fakeJobStore struct {
	mu       sync.Mutex
	enqueued []*domain.Job
}

func (s *fakeJobStore) Enqueue(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueued = append(s.enqueued, job)
	return nil
}

func (s *fakeJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return nil, store.ErrJobNotFound
}

func (s *fakeJobStore) ClaimNext(ctx context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.enqueued {
		if job.Status == domain.JobStatusPending {
			job.Status = domain.JobStatusProcessing
			job.Attempts++
			return job, nil
		}
	}
	return nil, nil
}

func (s *fakeJobStore) Complete(ctx context.Context, id uuid.UUID) error { return nil }

func (s *fakeJobStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error { return nil }

func (s *fakeJobStore) List(
	ctx context.Context,
	status domain.JobStatus,
	limit, offset int,
) ([]*domain.Job, error) {
	return s.enqueued, nil
}

func (s *fakeJobStore) WithTx(tx *sql.Tx) store.JobStore { return s }

// stubGenerator returns a canned child set and counts calls.
type stubGenerator struct {
	mu    sync.Mutex
	calls int
	set   *generation.ChildSet
	err   error
}

func (g *stubGenerator) GenerateChildren(
	ctx context.Context,
	cfg *domain.GenerationConfig,
	path []domain.PathStep,
) (*generation.ChildSet, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if g.set != nil {
		return g.set, nil
	}
	return &generation.ChildSet{
		Question: "Left or right?",
		Left:     domain.NodeContent{Title: "Left option", Description: "d", Context: "c"},
		Right:    domain.NodeContent{Title: "Right option", Description: "d", Context: "c"},
	}, nil
}

type stubChecker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *stubChecker) Check(ctx context.Context) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.err
}

// stubExecutor marks tasks completed or failed according to failFor.
type stubExecutor struct {
	tasks    *fakeImageTaskStore
	failFor  map[uuid.UUID]error
	executed []uuid.UUID
}

func (e *stubExecutor) Execute(ctx context.Context, task *domain.ImageTask) error {
	e.executed = append(e.executed, task.ID)
	if err, ok := e.failFor[task.ID]; ok {
		_ = e.tasks.MarkFailed(ctx, task.ID, err.Error())
		return err
	}
	_ = e.tasks.MarkCompleted(ctx, task.ID, "https://cdn.example.com/rendered.png")
	return nil
}

// syncRunner runs submitted work synchronously, which keeps inline-mode
// tests deterministic.
type syncRunner struct {
	submitted int
}

func (r *syncRunner) Submit(fn func(ctx context.Context)) error {
	r.submitted++
	fn(context.Background())
	return nil
}

// capturingRunner records submissions without executing them, so tests can
// observe what happened before and after the background work runs.
type capturingRunner struct {
	fns []func(ctx context.Context)
}

func (r *capturingRunner) Submit(fn func(ctx context.Context)) error {
	r.fns = append(r.fns, fn)
	return nil
}

func (r *capturingRunner) drain() {
	for _, fn := range r.fns {
		fn(context.Background())
	}
	r.fns = nil
}

package task

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/store"
	"github.com/google/uuid"
)

// memNodeStore is an in-memory NodeStore covering what the background
// machinery touches.
type memNodeStore struct {
	mu        sync.Mutex
	nodes     map[uuid.UUID]*domain.Node
	mediaURLs map[uuid.UUID]string
}

func newMemNodeStore(nodes ...*domain.Node) *memNodeStore {
	s := &memNodeStore{
		nodes:     make(map[uuid.UUID]*domain.Node),
		mediaURLs: make(map[uuid.UUID]string),
	}
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	return s
}

func (s *memNodeStore) Create(_ context.Context, node *domain.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = node
	return nil
}

func (s *memNodeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, store.ErrNodeNotFound
	}
	return node, nil
}

func (s *memNodeStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	return s.GetByID(ctx, id)
}

func (s *memNodeStore) GetChildren(_ context.Context, _ uuid.UUID) ([]*domain.Node, error) {
	return nil, nil
}

func (s *memNodeStore) MarkGenerated(_ context.Context, id uuid.UUID, question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return store.ErrNodeNotFound
	}
	node.MarkGenerated(question)
	return nil
}

func (s *memNodeStore) UpdateMediaURL(_ context.Context, id uuid.UUID, mediaURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return store.ErrNodeNotFound
	}
	node.MediaURL = &mediaURL
	s.mediaURLs[id] = mediaURL
	return nil
}

func (s *memNodeStore) IncrementVisits(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if node, ok := s.nodes[id]; ok {
		node.Visits++
	}
	return nil
}

func (s *memNodeStore) FindPlaceholderNodesWithoutTasks(
	_ context.Context, _ uuid.UUID, _ string,
) ([]*domain.Node, error) {
	return nil, nil
}

func (s *memNodeStore) WithTx(_ *sql.Tx) store.NodeStore { return s }

// memTreeStore is an in-memory TreeStore holding a fixed set of trees.
type memTreeStore struct {
	trees map[uuid.UUID]*domain.Tree
}

func newMemTreeStore(trees ...*domain.Tree) *memTreeStore {
	s := &memTreeStore{trees: make(map[uuid.UUID]*domain.Tree)}
	for _, tr := range trees {
		s.trees[tr.ID] = tr
	}
	return s
}

func (s *memTreeStore) Create(_ context.Context, tree *domain.Tree) error {
	s.trees[tree.ID] = tree
	return nil
}

func (s *memTreeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Tree, error) {
	tree, ok := s.trees[id]
	if !ok {
		return nil, store.ErrTreeNotFound
	}
	return tree, nil
}

func (s *memTreeStore) WithTx(_ *sql.Tx) store.TreeStore { return s }

// memTaskStore is an in-memory ImageTaskStore implementing the claiming
// protocol over a mutex instead of row locks.
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.ImageTask
}

func newMemTaskStore(tasks ...*domain.ImageTask) *memTaskStore {
	s := &memTaskStore{tasks: make(map[uuid.UUID]*domain.ImageTask)}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *memTaskStore) Create(_ context.Context, task *domain.ImageTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *memTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.ImageTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task, nil
}

func (s *memTaskStore) ClaimPending(_ context.Context, limit int) ([]*domain.ImageTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*domain.ImageTask
	for _, task := range s.tasks {
		if task.Status == domain.ImageTaskStatusPending {
			pending = append(pending, task)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	now := time.Now().UTC()
	for _, task := range pending {
		task.Status = domain.ImageTaskStatusGenerating
		started := now
		task.StartedAt = &started
	}
	return pending, nil
}

func (s *memTaskStore) ClaimByID(_ context.Context, id uuid.UUID) (*domain.ImageTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Status != domain.ImageTaskStatusPending {
		return nil, nil
	}
	task.Status = domain.ImageTaskStatusGenerating
	now := time.Now().UTC()
	task.StartedAt = &now
	return task, nil
}

func (s *memTaskStore) MarkCompleted(_ context.Context, id uuid.UUID, mediaURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Status = domain.ImageTaskStatusCompleted
	task.MediaURL = &mediaURL
	now := time.Now().UTC()
	task.CompletedAt = &now
	return nil
}

func (s *memTaskStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Status = domain.ImageTaskStatusFailed
	task.Error = &errMsg
	now := time.Now().UTC()
	task.CompletedAt = &now
	return nil
}

func (s *memTaskStore) FailStuck(
	_ context.Context, olderThan time.Duration, errMsg string,
) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	count := 0
	for _, task := range s.tasks {
		if task.Status != domain.ImageTaskStatusGenerating {
			continue
		}
		if task.StartedAt == nil || task.StartedAt.After(cutoff) {
			continue
		}
		task.Status = domain.ImageTaskStatusFailed
		msg := errMsg
		task.Error = &msg
		now := time.Now().UTC()
		task.CompletedAt = &now
		count++
	}
	return count, nil
}

func (s *memTaskStore) ResetFailed(_ context.Context, treeID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
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

func (s *memTaskStore) DeleteCompleted(_ context.Context, treeID uuid.UUID) (int, error) {
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

func (s *memTaskStore) ListByTree(
	_ context.Context, treeID uuid.UUID, status domain.ImageTaskStatus, limit, offset int,
) ([]*domain.ImageTask, error) {
	return nil, nil
}

func (s *memTaskStore) WithTx(_ *sql.Tx) store.ImageTaskStore { return s }

// memJobStore is an in-memory JobStore implementing claim and retry
// semantics over a mutex.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

func newMemJobStore(jobs ...*domain.Job) *memJobStore {
	s := &memJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *memJobStore) Enqueue(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memJobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job, nil
}

func (s *memJobStore) ClaimNext(_ context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *domain.Job
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.Status = domain.JobStatusProcessing
	oldest.Attempts++
	now := time.Now().UTC()
	oldest.StartedAt = &now
	return oldest, nil
}

func (s *memJobStore) Complete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.Status = domain.JobStatusCompleted
	now := time.Now().UTC()
	job.CompletedAt = &now
	return nil
}

func (s *memJobStore) Fail(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}

	msg := errMsg
	job.Error = &msg
	if job.Attempts < job.MaxAttempts {
		job.Status = domain.JobStatusPending
		job.StartedAt = nil
		return nil
	}
	job.Status = domain.JobStatusFailed
	now := time.Now().UTC()
	job.CompletedAt = &now
	return nil
}

func (s *memJobStore) List(
	_ context.Context, status domain.JobStatus, limit, offset int,
) ([]*domain.Job, error) {
	return nil, nil
}

func (s *memJobStore) WithTx(_ *sql.Tx) store.JobStore { return s }

// stubImageGen returns a canned URL or a configured error, recording calls.
type stubImageGen struct {
	mu    sync.Mutex
	url   string
	err   error
	calls []string
}

func (g *stubImageGen) GenerateImage(
	_ context.Context,
	_ *domain.GenerationConfig,
	nodeID string,
	_ domain.NodeContent,
) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, nodeID)
	if g.err != nil {
		return "", g.err
	}
	if g.url == "" {
		return "https://cdn.example.com/" + nodeID + ".png", nil
	}
	return g.url, nil
}

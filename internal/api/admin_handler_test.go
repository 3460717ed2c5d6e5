package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/service"
	"github.com/branchvote/branchvote-api/internal/store"
)

type fakeBulkOperator struct {
	result  *service.BulkResult
	cleared int
	err     error
	lastOp  string
}

func (f *fakeBulkOperator) op(name string) (*service.BulkResult, error) {
	f.lastOp = name
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeBulkOperator) RetryAllFailed(_ context.Context, _ uuid.UUID) (*service.BulkResult, error) {
	return f.op("retry")
}

func (f *fakeBulkOperator) RestartPending(_ context.Context, _ uuid.UUID) (*service.BulkResult, error) {
	return f.op("restart")
}

func (f *fakeBulkOperator) Backfill(_ context.Context, _ uuid.UUID) (*service.BulkResult, error) {
	return f.op("backfill")
}

func (f *fakeBulkOperator) ClearCompleted(_ context.Context, _ uuid.UUID) (int, error) {
	f.lastOp = "clear"
	return f.cleared, f.err
}

// fakeTaskLister overrides only the listing method; the rest of the store
// interface is never reached by the handler.
type fakeTaskLister struct {
	store.ImageTaskStore
	tasks     []*domain.ImageTask
	gotStatus domain.ImageTaskStatus
	gotLimit  int
	gotOffset int
}

func (f *fakeTaskLister) ListByTree(
	_ context.Context, _ uuid.UUID, status domain.ImageTaskStatus, limit, offset int,
) ([]*domain.ImageTask, error) {
	f.gotStatus = status
	f.gotLimit = limit
	f.gotOffset = offset
	return f.tasks, nil
}

type fakeJobLister struct {
	store.JobStore
	jobs []*domain.Job
}

func (f *fakeJobLister) List(
	_ context.Context, _ domain.JobStatus, _, _ int,
) ([]*domain.Job, error) {
	return f.jobs, nil
}

type fakeSweeper struct {
	swept int
	calls int
	err   error
}

func (f *fakeSweeper) Sweep(_ context.Context) (int, error) {
	f.calls++
	return f.swept, f.err
}

func adminRouter(h *AdminHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/trees/{id}/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Post("/retry-failed", h.RetryFailed)
		r.Post("/restart-pending", h.RestartPending)
		r.Post("/backfill", h.Backfill)
		r.Post("/clear-completed", h.ClearCompleted)
	})
	r.Get("/jobs", h.ListJobs)
	return r
}

func TestBulkEndpoints_ReturnResult(t *testing.T) {
	ops := &fakeBulkOperator{result: &service.BulkResult{Affected: 5, Succeeded: 4, Failed: 1}}
	handler := NewAdminHandler(ops, &fakeTaskLister{}, &fakeJobLister{}, &fakeSweeper{}, nil)
	router := adminRouter(handler)

	cases := []struct {
		path   string
		wantOp string
	}{
		{"/retry-failed", "retry"},
		{"/restart-pending", "restart"},
		{"/backfill", "backfill"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/trees/"+uuid.NewString()+"/tasks"+tc.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, tc.path)
		assert.Equal(t, tc.wantOp, ops.lastOp)

		var result service.BulkResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		assert.Equal(t, 5, result.Affected)
		assert.Equal(t, 4, result.Succeeded)
	}
}

func TestBulkEndpoints_StorageUnavailableReturns503(t *testing.T) {
	ops := &fakeBulkOperator{err: service.ErrStorageUnavailable}
	handler := NewAdminHandler(ops, &fakeTaskLister{}, &fakeJobLister{}, &fakeSweeper{}, nil)
	router := adminRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/trees/"+uuid.NewString()+"/tasks/retry-failed", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClearCompleted_ReturnsDeletedCount(t *testing.T) {
	ops := &fakeBulkOperator{cleared: 7}
	handler := NewAdminHandler(ops, &fakeTaskLister{}, &fakeJobLister{}, &fakeSweeper{}, nil)
	router := adminRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/trees/"+uuid.NewString()+"/tasks/clear-completed", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 7, resp["deleted"])
}

func TestListTasks_SweepsBeforeListing(t *testing.T) {
	task := &domain.ImageTask{
		ID:        uuid.New(),
		TreeID:    uuid.New(),
		NodeID:    uuid.New(),
		NodeTitle: "node",
		Status:    domain.ImageTaskStatusFailed,
		CreatedAt: time.Now().UTC(),
	}
	lister := &fakeTaskLister{tasks: []*domain.ImageTask{task}}
	sweeper := &fakeSweeper{swept: 2}
	handler := NewAdminHandler(&fakeBulkOperator{}, lister, &fakeJobLister{}, sweeper, nil)
	router := adminRouter(handler)

	req := httptest.NewRequest(http.MethodGet,
		"/trees/"+uuid.NewString()+"/tasks/?status=failed&limit=10&offset=20", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, domain.ImageTaskStatusFailed, lister.gotStatus)
	assert.Equal(t, 10, lister.gotLimit)
	assert.Equal(t, 20, lister.gotOffset)

	var resp []ImageTaskResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, task.ID.String(), resp[0].ID)
}

func TestListTasks_SweepFailureDoesNotBlockListing(t *testing.T) {
	lister := &fakeTaskLister{}
	sweeper := &fakeSweeper{err: assert.AnError}
	handler := NewAdminHandler(&fakeBulkOperator{}, lister, &fakeJobLister{}, sweeper, nil)
	router := adminRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/trees/"+uuid.NewString()+"/tasks/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListTasks_PaginationCapped(t *testing.T) {
	lister := &fakeTaskLister{}
	handler := NewAdminHandler(&fakeBulkOperator{}, lister, &fakeJobLister{}, &fakeSweeper{}, nil)
	router := adminRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/trees/"+uuid.NewString()+"/tasks/?limit=9999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, maxListLimit, lister.gotLimit)
}

func TestListJobs_ReturnsJobs(t *testing.T) {
	job, err := domain.NewJob("pregenerate", map[string]int{"depth": 2}, 3)
	require.NoError(t, err)
	handler := NewAdminHandler(&fakeBulkOperator{}, &fakeTaskLister{},
		&fakeJobLister{jobs: []*domain.Job{job}}, &fakeSweeper{}, nil)
	router := adminRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "pregenerate", resp[0].Type)
}

func TestAdminEndpoints_InvalidTreeIDReturns400(t *testing.T) {
	handler := NewAdminHandler(&fakeBulkOperator{}, &fakeTaskLister{}, &fakeJobLister{}, &fakeSweeper{}, nil)
	router := adminRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/trees/not-a-uuid/tasks/backfill", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

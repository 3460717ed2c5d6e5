package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/branchvote/branchvote-api/internal/api/shared"
	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/platform/logger"
	"github.com/branchvote/branchvote-api/internal/service"
	"github.com/branchvote/branchvote-api/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// BulkOperator is the slice of the admin service the handler needs.
type BulkOperator interface {
	RetryAllFailed(ctx context.Context, treeID uuid.UUID) (*service.BulkResult, error)
	RestartPending(ctx context.Context, treeID uuid.UUID) (*service.BulkResult, error)
	Backfill(ctx context.Context, treeID uuid.UUID) (*service.BulkResult, error)
	ClearCompleted(ctx context.Context, treeID uuid.UUID) (int, error)
}

// Sweeper fails stuck tasks. The admin handler runs it before every task
// listing so stale generating rows never survive past the next read.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// AdminHandler handles the bulk operations and queue listings of the admin
// surface.
type AdminHandler struct {
	admin  BulkOperator
	tasks  store.ImageTaskStore
	jobs   store.JobStore
	reaper Sweeper
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(
	admin BulkOperator,
	tasks store.ImageTaskStore,
	jobs store.JobStore,
	reaper Sweeper,
	log *slog.Logger,
) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		admin:  admin,
		tasks:  tasks,
		jobs:   jobs,
		reaper: reaper,
		logger: log.With(slog.String("component", "admin_handler")),
	}
}

// RetryFailed handles POST /trees/{id}/tasks/retry-failed requests.
func (h *AdminHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.admin.RetryAllFailed)
}

// RestartPending handles POST /trees/{id}/tasks/restart-pending requests.
func (h *AdminHandler) RestartPending(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.admin.RestartPending)
}

// Backfill handles POST /trees/{id}/tasks/backfill requests.
func (h *AdminHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.admin.Backfill)
}

// ClearCompleted handles POST /trees/{id}/tasks/clear-completed requests.
func (h *AdminHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	treeID, ok := h.treeID(w, r)
	if !ok {
		return
	}

	count, err := h.admin.ClearCompleted(r.Context(), treeID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]int{"deleted": count})
}

// ListTasks handles GET /trees/{id}/tasks requests. A reaper sweep runs
// first, so tasks abandoned by a dead worker already show as failed in the
// listing.
func (h *AdminHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	treeID, ok := h.treeID(w, r)
	if !ok {
		return
	}

	if swept, err := h.reaper.Sweep(r.Context()); err != nil {
		log.Error("opportunistic sweep failed", slog.String("error", err.Error()))
	} else if swept > 0 {
		log.Info("opportunistic sweep reaped tasks", slog.Int("count", swept))
	}

	status := domain.ImageTaskStatus(r.URL.Query().Get("status"))
	limit, offset := pagination(r)

	tasks, err := h.tasks.ListByTree(r.Context(), treeID, status, limit, offset)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]ImageTaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, taskToResponse(task))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// ListJobs handles GET /jobs requests.
func (h *AdminHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := domain.JobStatus(r.URL.Query().Get("status"))
	limit, offset := pagination(r)

	jobs, err := h.jobs.List(r.Context(), status, limit, offset)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// bulk runs one of the BulkResult-shaped operations.
func (h *AdminHandler) bulk(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, treeID uuid.UUID) (*service.BulkResult, error),
) {
	treeID, ok := h.treeID(w, r)
	if !ok {
		return
	}

	result, err := op(r.Context(), treeID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// treeID parses the tree ID path parameter, responding with 400 on failure.
func (h *AdminHandler) treeID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	treeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid tree ID")
		return uuid.Nil, false
	}
	return treeID, true
}

// pagination reads limit/offset query parameters with defaults and caps.
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/branchvote/branchvote-api/internal/api"
	apiMiddleware "github.com/branchvote/branchvote-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	nodeHandler := api.NewNodeHandler(app.expansionService, app.logger)
	treeHandler := api.NewTreeHandler(app.treeService, app.logger)
	adminHandler := api.NewAdminHandler(
		app.adminService, app.taskStore, app.jobStore, app.reaper, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Tree bootstrap and lookup
		r.Post("/trees", treeHandler.CreateTree)
		r.Get("/trees/{id}", treeHandler.GetTree)

		// Node expansion
		r.Post("/nodes/{id}/expand", nodeHandler.Expand)

		// Admin surface over the generation queues
		r.Route("/trees/{id}/tasks", func(r chi.Router) {
			r.Get("/", adminHandler.ListTasks)
			r.Post("/retry-failed", adminHandler.RetryFailed)
			r.Post("/restart-pending", adminHandler.RestartPending)
			r.Post("/backfill", adminHandler.Backfill)
			r.Post("/clear-completed", adminHandler.ClearCompleted)
		})
		r.Get("/jobs", adminHandler.ListJobs)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}

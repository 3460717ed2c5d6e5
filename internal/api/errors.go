package api

import (
	"errors"
	"net/http"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/generation"
	"github.com/branchvote/branchvote-api/internal/service"
	"github.com/branchvote/branchvote-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Discovery gate
	case errors.Is(err, service.ErrDiscoveryDisabled):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, store.ErrTreeNotFound),
		errors.Is(err, store.ErrNodeNotFound),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrJobNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, domain.ErrEmptyTreeName),
		errors.Is(err, domain.ErrEmptyNodeTitle),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Upstream content rejection
	case errors.Is(err, generation.ErrContentBlocked):
		return http.StatusUnprocessableEntity

	// Dependency outages
	case errors.Is(err, service.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, generation.ErrTransientFailure):
		return http.StatusBadGateway

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, service.ErrDiscoveryDisabled):
		return "Discovery is disabled for this tree"

	case errors.Is(err, store.ErrTreeNotFound):
		return "Tree not found"
	case errors.Is(err, store.ErrNodeNotFound):
		return "Node not found"
	case errors.Is(err, store.ErrTaskNotFound):
		return "Image task not found"
	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, domain.ErrEmptyTreeName):
		return "Tree name is required"
	case errors.Is(err, domain.ErrEmptyNodeTitle):
		return "Node title is required"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	case errors.Is(err, generation.ErrContentBlocked):
		return "Generation was blocked by content filters"
	case errors.Is(err, generation.ErrTransientFailure):
		return "Generation provider is temporarily unavailable"

	case errors.Is(err, service.ErrStorageUnavailable):
		return "Storage backend is unavailable"

	default:
		return "An unexpected error occurred"
	}
}

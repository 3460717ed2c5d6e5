// Package service provides the application-level services of the generation
// pipeline: node expansion, descendant pre-generation, and admin bulk
// operations over the image task queue.
package service

import "errors"

// Common service errors - sentinel errors used across service implementations.
// Callers check for these with errors.Is(); the API layer maps them to HTTP
// status codes.
var (
	// ErrDiscoveryDisabled indicates an expansion was requested on a tree
	// whose config does not allow discovering new nodes.
	// API layer should map this to HTTP 403 Forbidden.
	ErrDiscoveryDisabled = errors.New("node discovery is disabled for this tree")

	// ErrStorageUnavailable indicates the media storage backend failed its
	// health probe. Bulk operations short-circuit on it instead of creating
	// tasks destined to fail one by one.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrStorageUnavailable = errors.New("media storage backend is unreachable")
)

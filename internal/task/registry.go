package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// JobHandler processes the payload of one claimed job. A nil return completes
// the job; an error sends it through the retry path.
type JobHandler func(ctx context.Context, payload json.RawMessage) error

// Registry maps job types to their handlers. Registration happens at wiring
// time, before the worker starts polling, but the map is still guarded for
// safety.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]JobHandler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]JobHandler)}
}

// Register binds a handler to a job type, replacing any previous binding.
func (r *Registry) Register(jobType string, handler JobHandler) error {
	if jobType == "" {
		return fmt.Errorf("job type cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
	return nil
}

// Get returns the handler for a job type, or false when none is registered.
func (r *Registry) Get(jobType string) (JobHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[jobType]
	return handler, ok
}

package stream

import "sync"

// Registry is a thread-safe map from subject ID to the single live
// stream handle for that subject. Registration is last-writer-wins:
// registering over an existing entry replaces it and closes the
// replaced handle so its serving goroutine can exit.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Register stores h under subjectID, replacing any prior entry. The
// replaced handle, if any, is closed.
func (r *Registry) Register(subjectID string, h Handle) {
	r.mu.Lock()
	prev := r.handles[subjectID]
	r.handles[subjectID] = h
	r.mu.Unlock()

	if prev != nil && prev != h {
		prev.Close()
	}
}

// Unregister removes the entry for subjectID if present. Removing an
// absent subject is a no-op.
func (r *Registry) Unregister(subjectID string) {
	r.mu.Lock()
	delete(r.handles, subjectID)
	r.mu.Unlock()
}

// Release removes the entry for subjectID only if it still maps to h.
// Serving goroutines use this on exit so a connection that has already
// been replaced cannot evict its replacement.
func (r *Registry) Release(subjectID string, h Handle) {
	r.mu.Lock()
	if r.handles[subjectID] == h {
		delete(r.handles, subjectID)
	}
	r.mu.Unlock()
}

// Lookup returns the handle registered for subjectID, if any.
func (r *Registry) Lookup(subjectID string) (Handle, bool) {
	r.mu.RLock()
	h, ok := r.handles[subjectID]
	r.mu.RUnlock()
	return h, ok
}

// Len reports the number of registered subjects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

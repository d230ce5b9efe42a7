package target

import (
	"fmt"
	"sync"
)

// Registry holds the deployable targets loaded from configuration. Webhook
// handlers read it concurrently; reloads would write it, hence the lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry builds a registry over validated entries.
func NewRegistry(entries map[string]*Entry) *Registry {
	return &Registry{
		entries: entries,
	}
}

// Get looks up a target by the name webhooks address it with.
func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[name]
	if !exists {
		return nil, fmt.Errorf("no such target %q", name)
	}

	return entry, nil
}

// List returns the names of every configured target.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	return names
}

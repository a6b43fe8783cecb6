package coordinator

import (
	"fmt"
	"sort"
	"sync"
)

// Registry tracks the coordinator for each monitored site.
type Registry struct {
	mu           sync.RWMutex
	coordinators map[string]*Coordinator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		coordinators: make(map[string]*Coordinator),
	}
}

// Register adds a coordinator keyed by its site ID. Registering the
// same site twice is an error.
func (r *Registry) Register(c *Coordinator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.Site().ID
	if _, exists := r.coordinators[id]; exists {
		return fmt.Errorf("site %s already registered", id)
	}
	r.coordinators[id] = c
	return nil
}

// Get returns the coordinator for a site ID.
func (r *Registry) Get(siteID string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coordinators[siteID]
	return c, ok
}

// All returns every registered coordinator, sorted by site ID.
func (r *Registry) All() []*Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Coordinator, 0, len(r.coordinators))
	for _, c := range r.coordinators {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Site().ID < out[j].Site().ID
	})
	return out
}

// Count returns the number of registered coordinators.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.coordinators)
}

// StopAll stops every registered coordinator.
func (r *Registry) StopAll() {
	for _, c := range r.All() {
		c.Stop()
	}
}

// Package presence tracks which display names are currently online.
package presence

import (
	"sync"

	"github.com/samber/lo"
)

// Registry maps connection ids to the display name bound at login or
// join time. It is the single source of truth for "who is online". The
// registry is a lookup table only; the authoritative session state
// lives with the connection that owns it.
type Registry struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]string)}
}

// Register binds a display name to a connection id. Only the owning
// connection's handlers call this for their own id.
func (r *Registry) Register(connID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[connID] = displayName
}

// Unregister removes a connection's entry and returns the display name
// that was bound, if any. Safe to call for ids that were never
// registered.
func (r *Registry) Unregister(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[connID]
	if ok {
		delete(r.names, connID)
	}
	return name, ok
}

// Names returns a snapshot of the online display names. Order is
// incidental.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.names)
}

// Count returns the number of online connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

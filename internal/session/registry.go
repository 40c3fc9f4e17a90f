package session

import (
	"sync"

	"github.com/breaktools/meffec/internal/protocol"
)

// Registry holds the live sessions in connection order, the designated
// controller, and the current effect catalog.
type Registry struct {
	mu         sync.RWMutex
	sessions   []*Session
	controller *Session
	catalog    protocol.Catalog
}

func NewRegistry() *Registry {
	return &Registry{catalog: protocol.Catalog{}}
}

// Add appends s unless it is already registered.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(s) >= 0 {
		return
	}
	r.sessions = append(r.sessions, s)
}

// Remove drops s and clears the controller reference if s held it. It
// reports whether s was registered, so callers can run cleanup once.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(s)
	if i < 0 {
		return false
	}
	r.sessions = append(r.sessions[:i:i], r.sessions[i+1:]...)
	if r.controller == s {
		r.controller = nil
	}
	return true
}

// SetController designates s as the controller, replacing any previous one.
// The previous session stays registered. It returns the replaced session.
func (r *Registry) SetController(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.controller
	r.controller = s
	return prev
}

// Controller returns the designated controller or nil.
func (r *Registry) Controller() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.controller
}

// ReplaceCatalog swaps in c wholesale.
func (r *Registry) ReplaceCatalog(c protocol.Catalog) {
	clone := c.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = clone
}

// Catalog returns a copy of the current catalog.
func (r *Registry) Catalog() protocol.Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog.Clone()
}

// Snapshot returns the live sessions in connection order. The slice is
// owned by the caller.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// WithRole returns the live sessions that authenticated as role.
func (r *Registry) WithRole(role protocol.Role) []*Session {
	var out []*Session
	for _, s := range r.Snapshot() {
		if s.Role() == role {
			out = append(out, s)
		}
	}
	return out
}

// Roster lists {type, name} for every live session.
func (r *Registry) Roster() protocol.Roster {
	snap := r.Snapshot()
	out := make(protocol.Roster, 0, len(snap))
	for _, s := range snap {
		out = append(out, s.RosterEntry())
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CountByRole tallies live sessions per role.
func (r *Registry) CountByRole() map[protocol.Role]int {
	counts := map[protocol.Role]int{
		protocol.RoleUnassigned: 0,
		protocol.RoleController: 0,
		protocol.RoleApp:        0,
		protocol.RoleDevice:     0,
	}
	for _, s := range r.Snapshot() {
		counts[s.Role()]++
	}
	return counts
}

func (r *Registry) indexOf(s *Session) int {
	for i, existing := range r.sessions {
		if existing == s {
			return i
		}
	}
	return -1
}

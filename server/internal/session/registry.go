package session

import (
	"errors"
	"sync"
)

// ErrDuplicate is returned by Add when the ID is already registered.
var ErrDuplicate = errors.New("session: duplicate id")

// Registry is a thread-safe index of live sessions, keyed by session ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers s. It refuses to replace an existing entry.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return ErrDuplicate
	}
	r.sessions[s.ID()] = s
	return nil
}

// Remove deletes the session with the given ID and returns it, if present.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Snapshot returns the sessions registered at the time of the call, in no
// particular order. Entries may close after the snapshot is taken.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Open returns the snapshot filtered to sessions that are still open.
func (r *Registry) Open() []*Session {
	all := r.Snapshot()
	out := all[:0]
	for _, s := range all {
		if s.IsOpen() {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

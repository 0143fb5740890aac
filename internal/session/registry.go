package session

import (
	"sync"
	"time"

	"github.com/parlohq/parlo/backend/internal/service/ai"
)

// Registry maps connection identities to their active Session. It is an
// injectable instance, not a package singleton, so handlers can be tested
// without a live connection layer. Same-key access is already serialized by
// the per-connection read loop; the mutex protects concurrent access from
// unrelated connections.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create inserts a session for the connection, displacing any prior entry.
// The displaced session (or nil) is returned so the caller can close its
// dialogue handle.
func (r *Registry) Create(connID, userID string, dialogue *ai.Dialogue) (*Session, *Session) {
	created := &Session{
		ConnID:    connID,
		UserID:    userID,
		Dialogue:  dialogue,
		StartedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	displaced := r.sessions[connID]
	r.sessions[connID] = created
	r.mu.Unlock()

	return created, displaced
}

// Get returns the active session for the connection, if any.
func (r *Registry) Get(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// Remove deletes the connection's session and returns it. Removing an absent
// entry is a no-op.
func (r *Registry) Remove(connID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessions[connID]
	delete(r.sessions, connID)
	return s
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

package store

import (
	"context"
	"sync"

	"github.com/parlohq/parlo/backend/internal/model/profile"
)

// Memory implements profile.Store with an in-memory map, used for local
// development and tests when no DATABASE_URL is configured.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]profile.Profile
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{profiles: make(map[string]profile.Profile)}
}

// Seed inserts or replaces a profile record.
func (m *Memory) Seed(p profile.Profile) {
	m.mu.Lock()
	m.profiles[p.ID] = p
	m.mu.Unlock()
}

// Get retrieves a profile snapshot by identifier.
func (m *Memory) Get(_ context.Context, id string) (profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	return p, nil
}

// Update applies a partial update to one record, last write wins.
func (m *Memory) Update(_ context.Context, id string, update profile.Update) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}

	p = update.Apply(p)
	m.profiles[id] = p
	return p, nil
}

// Package store holds per-session coaching state with a TTL. Two
// implementations exist: an in-memory map for single-process
// deployments and a Redis-backed store for deployments that want
// session state to survive gateway restarts.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/echo-ai/coach-gateway/pkg/engine"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 3600 * time.Second

// Store is the session state contract. Get returns the zero state for
// unknown or expired sessions, never an error for absence. Update
// merges a delta and resets the session's TTL.
type Store interface {
	Get(ctx context.Context, sessionID string) (engine.State, error)
	Update(ctx context.Context, sessionID string, delta engine.Delta) error
}

type memoryEntry struct {
	state     engine.State
	expiresAt time.Time
}

// Memory is the in-memory Store. A single mutex guards the whole map;
// contention is low and every operation is O(state size), so finer
// locking buys nothing.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration

	// Now is swappable for tests.
	Now func() time.Time
}

// NewMemory returns an empty in-memory store. ttl <= 0 selects
// DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		Now:     time.Now,
	}
}

// Get returns the current state for sessionID. Expired entries are
// evicted here, lazily, so a stale state is never observed.
func (m *Memory) Get(_ context.Context, sessionID string) (engine.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[sessionID]
	if !ok {
		return engine.State{}, nil
	}
	if m.Now().After(entry.expiresAt) {
		delete(m.entries, sessionID)
		return engine.State{}, nil
	}
	return entry.state, nil
}

// Update merges delta into the stored state and pushes the expiry out
// by the full TTL.
func (m *Memory) Update(_ context.Context, sessionID string, delta engine.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.entries[sessionID]
	entry.state.Merge(delta)
	entry.expiresAt = m.Now().Add(m.ttl)
	m.entries[sessionID] = entry
	return nil
}

// Len reports the number of live entries, expired ones included until
// their next Get. Used by the readiness probe.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

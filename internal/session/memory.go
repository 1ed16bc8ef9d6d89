package session

import (
	"context"
	"sort"
	"sync"

	"github.com/stats-tracker/internal/domain"
)

// MemoryTracker keeps the last update of every player for the lifetime of
// the process
type MemoryTracker struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

// NewMemoryTracker creates an empty tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		sessions: make(map[string]domain.Session),
	}
}

// Touch records session as the player's latest state
func (t *MemoryTracker) Touch(_ context.Context, session domain.Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[session.Name] = session
	return nil
}

// Count returns the number of distinct players seen
func (t *MemoryTracker) Count(_ context.Context) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int64(len(t.sessions)), nil
}

// List returns every session, most recently updated first
func (t *MemoryTracker) List(_ context.Context) ([]domain.Session, error) {
	t.mu.RLock()
	out := make([]domain.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdate.Equal(out[j].LastUpdate) {
			return out[i].Name < out[j].Name
		}
		return out[i].LastUpdate.After(out[j].LastUpdate)
	})
	return out, nil
}

// Reset forgets every session
func (t *MemoryTracker) Reset(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.sessions)
	return nil
}

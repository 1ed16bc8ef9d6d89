package feed

import (
	"sync"

	"github.com/stats-tracker/internal/domain"
)

// DefaultCapacity is the number of entries kept when no capacity is configured
const DefaultCapacity = 200

// Feed is a bounded, process-lifetime log of ingestion events.
// When full, appending evicts the oldest entry
type Feed struct {
	mu      sync.RWMutex
	entries []domain.ActivityEntry
	start   int
	size    int
}

// New creates a feed holding at most capacity entries
func New(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{
		entries: make([]domain.ActivityEntry, capacity),
	}
}

// Append adds an entry, evicting the oldest one if the feed is full
func (f *Feed) Append(entry domain.ActivityEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	capacity := len(f.entries)
	if f.size < capacity {
		f.entries[(f.start+f.size)%capacity] = entry
		f.size++
		return
	}
	f.entries[f.start] = entry
	f.start = (f.start + 1) % capacity
}

// Last returns up to n of the newest entries, oldest first.
// n <= 0 returns every entry
func (f *Feed) Last(n int) []domain.ActivityEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n <= 0 || n > f.size {
		n = f.size
	}
	out := make([]domain.ActivityEntry, n)
	capacity := len(f.entries)
	offset := f.size - n
	for i := 0; i < n; i++ {
		out[i] = f.entries[(f.start+offset+i)%capacity]
	}
	return out
}

// Len returns the number of entries currently held
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.size
}

// Capacity returns the maximum number of entries
func (f *Feed) Capacity() int {
	return len(f.entries)
}

// Reset drops every entry
func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.entries)
	f.start = 0
	f.size = 0
}

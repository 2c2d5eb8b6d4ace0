package cache

import (
	"sort"
	"sync"

	"go.uber.org/atomic"
)

// Store maps each lookup key to its most recent Entry. Implementations must
// be safe for concurrent use and must never hand out references to the
// entries they own.
type Store interface {
	// Get returns a copy of the entry for key.
	Get(key string) (Entry, bool)

	// Put creates or replaces the entry for key.
	Put(key string, entry Entry)

	// Update mutates the existing entry for key in place under the store
	// lock and returns the updated copy. Returns false if key is absent.
	Update(key string, fn func(*Entry)) (Entry, bool)

	// Len returns the number of entries.
	Len() int

	// Keys returns all keys in sorted order.
	Keys() []string
}

// Stats is a point-in-time snapshot of store activity.
type Stats struct {
	Entries int   `json:"entries"`
	Lookups int64 `json:"lookups"`
	Found   int64 `json:"found"`
	Writes  int64 `json:"writes"`
	Updates int64 `json:"updates"`
}

// MemoryStore is the in-process Store. It has no eviction and no size
// bound; the key space is small and enumerable (currency pairs and
// searched tickers). Entries live until the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	lookups atomic.Int64
	found   atomic.Int64
	writes  atomic.Int64
	updates atomic.Int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(key string) (Entry, bool) {
	s.lookups.Inc()

	s.mu.RLock()
	e, ok := s.entries[key]
	var out Entry
	if ok {
		out = *e
	}
	s.mu.RUnlock()

	if !ok {
		CacheLookups.WithLabelValues("absent").Inc()
		return Entry{}, false
	}

	s.found.Inc()
	CacheLookups.WithLabelValues("found").Inc()
	return out, true
}

// Put implements Store.
func (s *MemoryStore) Put(key string, entry Entry) {
	entry.Key = key

	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		*e = entry
	} else {
		s.entries[key] = &entry
	}
	n := len(s.entries)
	s.mu.Unlock()

	s.writes.Inc()
	CacheWrites.WithLabelValues("put").Inc()
	CacheEntries.Set(float64(n))
}

// Update implements Store.
func (s *MemoryStore) Update(key string, fn func(*Entry)) (Entry, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return Entry{}, false
	}
	fn(e)
	e.Key = key
	out := *e
	s.mu.Unlock()

	s.updates.Inc()
	CacheWrites.WithLabelValues("update").Inc()
	return out, true
}

// Len implements Store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys implements Store.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Stats returns activity counters.
func (s *MemoryStore) Stats() Stats {
	return Stats{
		Entries: s.Len(),
		Lookups: s.lookups.Load(),
		Found:   s.found.Load(),
		Writes:  s.writes.Load(),
		Updates: s.updates.Load(),
	}
}

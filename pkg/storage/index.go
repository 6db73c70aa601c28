package storage

import "sync"

// IDIndex is a concurrency-safe set of record identifiers
type IDIndex struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewIDIndex creates an index seeded with ids
func NewIDIndex(ids ...string) *IDIndex {
	idx := &IDIndex{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		idx.ids[id] = struct{}{}
	}
	return idx
}

// Has reports whether id is in the index
func (x *IDIndex) Has(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.ids[id]
	return ok
}

// Add inserts id and reports whether it was new
func (x *IDIndex) Add(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.ids[id]; ok {
		return false
	}
	x.ids[id] = struct{}{}
	return true
}

// Len returns the number of identifiers held
func (x *IDIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

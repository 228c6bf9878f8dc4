package queue

import "sync"

// SeenSet remembers recently delivered identities so repeated polls stay
// idempotent. Insertion order decides which identities survive a trim.
type SeenSet struct {
	mu       sync.Mutex
	order    []string
	index    map[string]struct{}
	capacity int
	retain   int
}

// NewSeenSet returns a set trimmed to retain identities past capacity.
func NewSeenSet(capacity, retain int) *SeenSet {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if retain <= 0 || retain > capacity {
		retain = min(DefaultRetain, capacity)
	}
	return &SeenSet{
		index:    make(map[string]struct{}),
		capacity: capacity,
		retain:   retain,
	}
}

// Add records id and reports whether it was new.
func (s *SeenSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.capacity {
		drop := len(s.order) - s.retain
		for _, old := range s.order[:drop] {
			delete(s.index, old)
		}
		kept := make([]string, s.retain)
		copy(kept, s.order[drop:])
		s.order = kept
	}
	return true
}

// Contains reports whether id is currently remembered.
func (s *SeenSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Len returns the number of remembered identities.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Clear forgets everything.
func (s *SeenSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.index = make(map[string]struct{})
}

// Package queue holds the Responder's outbound envelope queue and the
// Initiator's dedup set.
//
// Both structures are bounded. Once a queue grows past its capacity it keeps
// only the newest entries; anything older is dropped. The bus is best-effort
// and at-most-once: a slow Initiator under sustained load loses the oldest
// undelivered envelopes rather than stalling the Responder.
package queue

import (
	"sync"

	"github.com/five82/eaglebridge/internal/wire"
)

const (
	// DefaultCapacity is the size at which a queue is trimmed.
	DefaultCapacity = 100
	// DefaultRetain is how many of the newest entries survive a trim.
	DefaultRetain = 50
)

// Queue is a bounded FIFO of envelopes safe for concurrent Push and Drain.
type Queue struct {
	mu       sync.Mutex
	items    []wire.Envelope
	capacity int
	retain   int
	dropped  int
}

// New returns a queue that trims to retain entries once it exceeds capacity.
// Non-positive values fall back to the defaults.
func New(capacity, retain int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if retain <= 0 || retain > capacity {
		retain = min(DefaultRetain, capacity)
	}
	return &Queue{capacity: capacity, retain: retain}
}

// Push appends env, trimming to the newest entries when the queue overflows.
func (q *Queue) Push(env wire.Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, env)
	if len(q.items) > q.capacity {
		drop := len(q.items) - q.retain
		q.dropped += drop
		kept := make([]wire.Envelope, q.retain)
		copy(kept, q.items[drop:])
		q.items = kept
	}
}

// Drain returns every queued envelope and empties the queue in one step.
func (q *Queue) Drain() []wire.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued envelopes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many envelopes were discarded by trimming.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

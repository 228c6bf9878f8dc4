package server

import (
	"sync"
	"time"

	"github.com/five82/eaglebridge/internal/wire"
)

// registry tracks polling clients and the most recent Initiator state.
type registry struct {
	mu       sync.Mutex
	clients  map[string]time.Time
	lastPoll time.Time
	peerPort int
	aeStatus *wire.AEStatus
}

func newRegistry() *registry {
	return &registry{clients: make(map[string]time.Time)}
}

// touch records a poll from id and reports whether id is new.
func (r *registry) touch(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, seen := r.clients[id]
	r.clients[id] = now
	r.lastPoll = now
	return !seen
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *registry) lastPollAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPoll
}

// setPeerPort records an advertised port and returns the previous one.
func (r *registry) setPeerPort(port int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.peerPort
	r.peerPort = port
	return prev
}

func (r *registry) peer() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerPort
}

func (r *registry) setAEStatus(s wire.AEStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aeStatus = &s
}

func (r *registry) status() (wire.AEStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aeStatus == nil {
		return wire.AEStatus{}, false
	}
	return *r.aeStatus, true
}

// logBatch holds shipped log entries until the next /messages drain.
type logBatch struct {
	mu      sync.Mutex
	entries []wire.LogEntry
	limit   int
}

func (b *logBatch) add(entries []wire.LogEntry) {
	if len(entries) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entries...)
	if b.limit > 0 && len(b.entries) > b.limit {
		b.entries = append([]wire.LogEntry(nil), b.entries[len(b.entries)-b.limit:]...)
	}
}

func (b *logBatch) take() []wire.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = nil
	if out == nil {
		out = []wire.LogEntry{}
	}
	return out
}

func (b *logBatch) clear() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}

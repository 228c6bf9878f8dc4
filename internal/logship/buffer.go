package logship

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/eaglebridge/internal/wire"
)

const (
	// DefaultBufferLimit bounds the Responder's local log buffer.
	DefaultBufferLimit = 100
	// DefaultHistoryLimit bounds the Initiator's merged history.
	DefaultHistoryLimit = 200
)

// Sink accepts locally produced log lines.
type Sink interface {
	Add(level wire.LogLevel, message string) wire.LogEntry
}

// Buffer is the Responder-side log store. It remembers which entries were
// already handed to the shipper so each line leaves at most once.
type Buffer struct {
	mu      sync.Mutex
	entries []wire.LogEntry
	index   map[string]struct{}
	sent    map[string]struct{}
	limit   int
	source  wire.LogSource
	now     func() time.Time
}

// NewBuffer returns a buffer stamping new entries with source.
func NewBuffer(source wire.LogSource, limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &Buffer{
		index:  make(map[string]struct{}),
		sent:   make(map[string]struct{}),
		limit:  limit,
		source: source,
		now:    time.Now,
	}
}

// Add records a new local line.
func (b *Buffer) Add(level wire.LogLevel, message string) wire.LogEntry {
	entry := wire.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: b.now().UTC().Format(time.RFC3339Nano),
		Message:   message,
		Level:     level,
		Source:    b.source,
	}
	b.mu.Lock()
	b.appendLocked(entry)
	b.mu.Unlock()
	return entry
}

// Append stores entries produced elsewhere, skipping known identities. It
// returns how many were stored. Appended entries count as already sent.
func (b *Buffer) Append(entries ...wire.LogEntry) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	added := 0
	for _, e := range entries {
		if _, ok := b.index[e.Identity()]; ok {
			continue
		}
		b.appendLocked(e)
		b.sent[e.Identity()] = struct{}{}
		added++
	}
	return added
}

func (b *Buffer) appendLocked(e wire.LogEntry) {
	b.entries = append(b.entries, e)
	b.index[e.Identity()] = struct{}{}
	if over := len(b.entries) - b.limit; over > 0 {
		for _, old := range b.entries[:over] {
			delete(b.index, old.Identity())
			delete(b.sent, old.Identity())
		}
		kept := make([]wire.LogEntry, b.limit)
		copy(kept, b.entries[over:])
		b.entries = kept
	}
}

// Unsent returns entries not yet shipped and marks them shipped.
func (b *Buffer) Unsent() []wire.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []wire.LogEntry
	for _, e := range b.entries {
		id := e.Identity()
		if _, ok := b.sent[id]; ok {
			continue
		}
		b.sent[id] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Entries returns a copy of the buffered lines, oldest first.
func (b *Buffer) Entries() []wire.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]wire.LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear wipes the buffer and the sent set.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.index = make(map[string]struct{})
	b.sent = make(map[string]struct{})
}

// Tee records each line in Outbox for shipping and merges it into History
// for local display.
type Tee struct {
	Outbox  *Buffer
	History *History
}

// Add implements Sink.
func (t Tee) Add(level wire.LogLevel, message string) wire.LogEntry {
	entry := t.Outbox.Add(level, message)
	t.History.Merge([]wire.LogEntry{entry})
	return entry
}

package logship

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/eaglebridge/internal/wire"
)

// DefaultClearGrace is how long Responder entries are ignored after a clear.
const DefaultClearGrace = 3 * time.Second

// History is the Initiator-side merged log view.
type History struct {
	mu        sync.Mutex
	entries   []wire.LogEntry
	index     map[string]struct{}
	limit     int
	view      wire.LogSource
	grace     time.Duration
	clearedAt time.Time
	now       func() time.Time
}

// NewHistory returns a history bounded to limit entries.
func NewHistory(limit int, grace time.Duration) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if grace <= 0 {
		grace = DefaultClearGrace
	}
	return &History{
		index: make(map[string]struct{}),
		limit: limit,
		view:  wire.SourceInitiator,
		grace: grace,
		now:   time.Now,
	}
}

// Add records a local Initiator line.
func (h *History) Add(level wire.LogLevel, message string) wire.LogEntry {
	entry := wire.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		Message:   message,
		Level:     level,
		Source:    wire.SourceInitiator,
	}
	h.Merge([]wire.LogEntry{entry})
	return entry
}

// Merge folds incoming entries into the history. It returns how many were
// new and whether the currently selected view gained entries.
func (h *History) Merge(entries []wire.LogEntry) (added int, rerender bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	suppressRemote := !h.clearedAt.IsZero() && h.now().Sub(h.clearedAt) < h.grace
	for _, e := range entries {
		if e.Source == "" {
			e.Source = wire.SourceResponder
		}
		if suppressRemote && e.Source == wire.SourceResponder {
			continue
		}
		id := e.Identity()
		if _, ok := h.index[id]; ok {
			continue
		}
		h.index[id] = struct{}{}
		h.entries = append(h.entries, e)
		added++
		if e.Source == h.view {
			rerender = true
		}
	}
	if added == 0 {
		return 0, false
	}

	sort.SliceStable(h.entries, func(i, j int) bool {
		return h.entries[i].ParsedTime().Before(h.entries[j].ParsedTime())
	})
	if over := len(h.entries) - h.limit; over > 0 {
		for _, old := range h.entries[:over] {
			delete(h.index, old.Identity())
		}
		kept := make([]wire.LogEntry, h.limit)
		copy(kept, h.entries[over:])
		h.entries = kept
	}
	return added, rerender
}

// MarkCleared drops every entry from source. Clearing the Responder view also
// opens the grace window during which late Responder entries are ignored.
func (h *History) MarkCleared(source wire.LogSource) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.Source == source {
			delete(h.index, e.Identity())
			continue
		}
		kept = append(kept, e)
	}
	h.entries = kept
	if source == wire.SourceResponder {
		h.clearedAt = h.now()
	}
}

// SetView selects which source the operator is looking at.
func (h *History) SetView(source wire.LogSource) {
	h.mu.Lock()
	h.view = source
	h.mu.Unlock()
}

// View returns the selected source.
func (h *History) View() wire.LogSource {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.view
}

// Entries returns the entries for source, or all entries when source is
// empty, oldest first.
func (h *History) Entries(source wire.LogSource) []wire.LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]wire.LogEntry, 0, len(h.entries))
	for _, e := range h.entries {
		if source == "" || e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

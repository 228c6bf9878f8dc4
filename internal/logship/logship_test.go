package logship

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/eaglebridge/internal/wire"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 12, 13, 10, 0, 0, 0, time.UTC)}
}

func stamp(c *fakeClock, offset time.Duration) string {
	return c.t.Add(offset).Format(time.RFC3339Nano)
}

func TestBuffer_UnsentShipsEachEntryOnce(t *testing.T) {
	b := NewBuffer(wire.SourceResponder, 0)
	b.Add(wire.LevelInfo, "one")
	b.Add(wire.LevelWarning, "two")

	first := b.Unsent()
	require.Len(t, first, 2)
	assert.Equal(t, wire.SourceResponder, first[0].Source)
	assert.NotEmpty(t, first[0].ID)
	assert.Empty(t, b.Unsent(), "second call ships nothing new")

	b.Add(wire.LevelError, "three")
	next := b.Unsent()
	require.Len(t, next, 1)
	assert.Equal(t, "three", next[0].Message)
}

func TestBuffer_BoundedOldestFirst(t *testing.T) {
	b := NewBuffer(wire.SourceResponder, 3)
	for i := 0; i < 5; i++ {
		b.Add(wire.LevelInfo, fmt.Sprintf("line %d", i))
	}
	entries := b.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "line 2", entries[0].Message)
	assert.Equal(t, "line 4", entries[2].Message)
}

func TestBuffer_ClearWipesSentSet(t *testing.T) {
	b := NewBuffer(wire.SourceResponder, 0)
	e := b.Add(wire.LevelInfo, "again")
	b.Unsent()
	b.Clear()
	assert.Zero(t, b.Len())

	assert.Equal(t, 1, b.Append(wire.LogEntry{ID: e.ID, Message: "again"}))
	assert.Zero(t, b.Append(wire.LogEntry{ID: e.ID, Message: "again"}), "duplicate id ignored")
	assert.Empty(t, b.Unsent(), "appended entries are not reshipped")
}

func TestHistory_MergeDedupsAndSorts(t *testing.T) {
	clock := newClock()
	h := NewHistory(0, 0)
	h.now = clock.now
	h.SetView(wire.SourceResponder)

	batch := []wire.LogEntry{
		{ID: "b", Timestamp: stamp(clock, 2*time.Second), Message: "later", Source: wire.SourceResponder},
		{ID: "a", Timestamp: stamp(clock, time.Second), Message: "earlier", Source: wire.SourceResponder},
		{Timestamp: stamp(clock, 3*time.Second), Message: "no id", Source: wire.SourceResponder},
	}
	added, rerender := h.Merge(batch)
	assert.Equal(t, 3, added)
	assert.True(t, rerender)

	added, rerender = h.Merge(batch)
	assert.Zero(t, added, "replayed batch is idempotent")
	assert.False(t, rerender)

	got := h.Entries(wire.SourceResponder)
	require.Len(t, got, 3)
	assert.Equal(t, "earlier", got[0].Message)
	assert.Equal(t, "no id", got[2].Message)
}

func TestHistory_RerenderOnlyForSelectedView(t *testing.T) {
	clock := newClock()
	h := NewHistory(0, 0)
	h.now = clock.now
	h.SetView(wire.SourceInitiator)

	_, rerender := h.Merge([]wire.LogEntry{{ID: "r1", Timestamp: stamp(clock, 0), Source: wire.SourceResponder}})
	assert.False(t, rerender)
	_, rerender = h.Merge([]wire.LogEntry{{ID: "i1", Timestamp: stamp(clock, 0), Source: wire.SourceInitiator}})
	assert.True(t, rerender)
}

func TestHistory_ClearGraceWindow(t *testing.T) {
	clock := newClock()
	h := NewHistory(0, 3*time.Second)
	h.now = clock.now

	h.Merge([]wire.LogEntry{{ID: "old", Timestamp: stamp(clock, 0), Source: wire.SourceResponder}})
	h.MarkCleared(wire.SourceResponder)
	assert.Empty(t, h.Entries(wire.SourceResponder))

	clock.advance(time.Second)
	added, _ := h.Merge([]wire.LogEntry{{ID: "old", Timestamp: stamp(clock, -time.Second), Source: wire.SourceResponder}})
	assert.Zero(t, added, "stale entry inside the grace window is dropped")

	added, _ = h.Merge([]wire.LogEntry{{ID: "local", Timestamp: stamp(clock, 0), Source: wire.SourceInitiator}})
	assert.Equal(t, 1, added, "local entries are never suppressed")

	clock.advance(3 * time.Second)
	added, _ = h.Merge([]wire.LogEntry{{ID: "fresh", Timestamp: stamp(clock, 0), Source: wire.SourceResponder}})
	assert.Equal(t, 1, added, "entries after the window are kept")
}

func TestHistory_Bounded(t *testing.T) {
	clock := newClock()
	h := NewHistory(5, 0)
	h.now = clock.now
	for i := 0; i < 8; i++ {
		h.Merge([]wire.LogEntry{{ID: fmt.Sprint(i), Timestamp: stamp(clock, time.Duration(i)*time.Second), Source: wire.SourceResponder}})
	}
	got := h.Entries("")
	require.Len(t, got, 5)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "7", got[4].ID)
}

func TestHandler_MirrorsRecordsWithAttrs(t *testing.T) {
	b := NewBuffer(wire.SourceResponder, 0)
	logger := slog.New(NewHandler(b, slog.LevelInfo)).With("component", "server")

	logger.Debug("hidden")
	logger.Info("listening", "port", 8080)
	logger.Log(context.Background(), LevelSuccess, "paired")
	logger.WithGroup("peer").Warn("mismatch", "port", 8081)

	entries := b.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "listening component=server port=8080", entries[0].Message)
	assert.Equal(t, wire.LevelInfo, entries[0].Level)
	assert.Equal(t, wire.LevelSuccess, entries[1].Level)
	assert.Equal(t, wire.LevelWarning, entries[2].Level)
	assert.Contains(t, entries[2].Message, "peer.port=8081")
}

func TestTee_ShipsAndDisplaysSameEntry(t *testing.T) {
	tee := Tee{
		Outbox:  NewBuffer(wire.SourceInitiator, 0),
		History: NewHistory(0, 0),
	}
	entry := tee.Add(wire.LevelInfo, "connected")

	unsent := tee.Outbox.Unsent()
	require.Len(t, unsent, 1)
	assert.Equal(t, entry.ID, unsent[0].ID)

	shown := tee.History.Entries(wire.SourceInitiator)
	require.Len(t, shown, 1)
	assert.Equal(t, entry.ID, shown[0].ID)
}

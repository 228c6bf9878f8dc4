package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/eaglebridge/internal/wire"
)

func statusEnvelope(i int) wire.Envelope {
	return wire.Envelope{Type: "status", Timestamp: int64(1000 + i)}
}

func TestQueue_TrimsToNewestOnOverflow(t *testing.T) {
	q := New(0, 0)
	for i := 1; i <= 101; i++ {
		q.Push(statusEnvelope(i))
	}

	require.Equal(t, 50, q.Len())
	got := q.Drain()
	require.Len(t, got, 50)
	assert.Equal(t, int64(1052), got[0].Timestamp, "oldest survivor")
	assert.Equal(t, int64(1101), got[49].Timestamp, "newest survivor")
	assert.Equal(t, 51, q.Dropped())
	assert.Zero(t, q.Len(), "drain empties the queue")
	assert.Empty(t, q.Drain())
}

func TestQueue_BelowCapacityKeepsEverythingInOrder(t *testing.T) {
	q := New(10, 5)
	for i := 0; i < 10; i++ {
		q.Push(statusEnvelope(i))
	}
	got := q.Drain()
	require.Len(t, got, 10)
	for i, env := range got {
		assert.Equal(t, int64(1000+i), env.Timestamp)
	}
}

func TestQueue_ConcurrentPushAndDrainLosesNothingBelowCapacity(t *testing.T) {
	q := New(10000, 5000)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var drained []wire.Envelope

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Push(wire.Envelope{Type: fmt.Sprintf("w%d", w), Timestamp: int64(i)})
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			batch := q.Drain()
			mu.Lock()
			drained = append(drained, batch...)
			mu.Unlock()
		}
	}()
	wg.Wait()
	drained = append(drained, q.Drain()...)

	seen := make(map[string]bool)
	for _, env := range drained {
		id := env.Identity()
		assert.False(t, seen[id], "duplicate delivery of %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 1000)
}

func TestSeenSet_AddIsIdempotent(t *testing.T) {
	s := NewSeenSet(0, 0)
	assert.True(t, s.Add("status:1"))
	assert.False(t, s.Add("status:1"))
	assert.True(t, s.Contains("status:1"))
	assert.Equal(t, 1, s.Len())
}

func TestSeenSet_TrimsOldestIdentities(t *testing.T) {
	s := NewSeenSet(100, 50)
	for i := 1; i <= 101; i++ {
		s.Add(fmt.Sprintf("id-%d", i))
	}
	assert.Equal(t, 50, s.Len())
	assert.False(t, s.Contains("id-1"))
	assert.False(t, s.Contains("id-51"))
	assert.True(t, s.Contains("id-52"))
	assert.True(t, s.Contains("id-101"))

	s.Clear()
	assert.Zero(t, s.Len())
	assert.True(t, s.Add("id-101"))
}

package sched

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGroup(t *testing.T) *Group {
	t.Helper()
	g := NewGroup(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = g.Stop() })
	return g
}

func TestEvery_RunsImmediatelyAndOnTicks(t *testing.T) {
	g := newTestGroup(t)
	var n atomic.Int32
	task := g.Every("poll", 10*time.Millisecond, func(context.Context) error {
		n.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, task.Runs(), int64(3))
}

func TestEvery_NeverOverlaps(t *testing.T) {
	g := newTestGroup(t)
	var (
		active  atomic.Int32
		overlap atomic.Bool
		runs    atomic.Int32
	)
	task := g.Every("slow", 5*time.Millisecond, func(context.Context) error {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		runs.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
	assert.False(t, overlap.Load())
	assert.Positive(t, task.Skipped())
}

func TestEvery_ErrorsDoNotStopTask(t *testing.T) {
	g := newTestGroup(t)
	var n atomic.Int32
	g.Every("flaky", 5*time.Millisecond, func(context.Context) error {
		n.Add(1)
		return errors.New("peer offline")
	})

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, g.Running("flaky"))
}

func TestEvery_SameNameReturnsRunningTask(t *testing.T) {
	g := newTestGroup(t)
	noop := func(context.Context) error { return nil }
	first := g.Every("status", time.Hour, noop)
	second := g.Every("status", time.Hour, noop)
	assert.Same(t, first, second)
}

func TestCancel_FromInsideTask(t *testing.T) {
	g := newTestGroup(t)
	var n atomic.Int32
	task := g.Every("poll", 5*time.Millisecond, func(context.Context) error {
		n.Add(1)
		g.Cancel("poll")
		return nil
	})

	require.Eventually(t, func() bool { return !g.Running("poll") }, time.Second, time.Millisecond)
	task.Stop()
	assert.EqualValues(t, 1, n.Load())
}

func TestStop_CancelsContextAndWaits(t *testing.T) {
	g := NewGroup(context.Background(), nil)
	var exited atomic.Bool
	g.Every("blocker", time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		exited.Store(true)
		return ctx.Err()
	})

	require.Eventually(t, func() bool { return g.Running("blocker") }, time.Second, time.Millisecond)
	require.NoError(t, g.Stop())
	assert.True(t, exited.Load())
	assert.False(t, g.Running("blocker"))
}

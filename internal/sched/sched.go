// Package sched runs the bridge's periodic background tasks: the message
// poll, status push, port broadcast, log shipping and auto-connect.
//
// Every task belongs to a Group. A task runs once immediately and then on
// each tick of its interval. A tick that arrives while the previous run is
// still executing is skipped rather than queued, so no task ever overlaps
// itself. Stopping a Group cancels the context handed to every task and
// waits for them to return.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Func is one run of a periodic task. Errors are logged and the task keeps
// its cadence.
type Func func(ctx context.Context) error

// Group owns a set of tasks sharing one lifetime.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*Task
}

// Task is a handle to one running periodic task.
type Task struct {
	name    string
	cancel  context.CancelFunc
	done    chan struct{}
	runs    atomic.Int64
	skipped atomic.Int64
}

// NewGroup returns a Group whose tasks stop when ctx is cancelled.
func NewGroup(ctx context.Context, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	return &Group{
		ctx:    ctx,
		cancel: cancel,
		eg:     eg,
		logger: logger,
		tasks:  make(map[string]*Task),
	}
}

// Every starts fn under name. Starting a name that is already running
// returns the existing task.
func (g *Group) Every(name string, interval time.Duration, fn Func) *Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.tasks[name]; ok {
		select {
		case <-t.done:
		default:
			return t
		}
	}

	ctx, cancel := context.WithCancel(g.ctx)
	t := &Task{name: name, cancel: cancel, done: make(chan struct{})}
	g.tasks[name] = t

	g.eg.Go(func() error {
		defer close(t.done)
		t.loop(ctx, interval, fn, g.logger)
		return nil
	})
	return t
}

// Go runs fn once in the background under the Group's lifetime. A non-nil
// error cancels the Group.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error { return fn(g.ctx) })
}

// Cancel signals the named task to stop without waiting for it, so a task
// may cancel itself.
func (g *Group) Cancel(name string) {
	g.mu.Lock()
	t, ok := g.tasks[name]
	delete(g.tasks, name)
	g.mu.Unlock()
	if ok {
		t.cancel()
	}
}

// Running reports whether the named task is active.
func (g *Group) Running(name string) bool {
	g.mu.Lock()
	t, ok := g.tasks[name]
	g.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Context returns the Group's lifetime context.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Stop cancels every task and waits for all of them to return.
func (g *Group) Stop() error {
	g.cancel()
	return g.eg.Wait()
}

// Stop cancels the task and waits for its current run to finish. It must not
// be called from inside the task.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

// Runs returns how many times the task has executed.
func (t *Task) Runs() int64 { return t.runs.Load() }

// Skipped returns how many ticks were dropped because a run was in flight.
func (t *Task) Skipped() int64 { return t.skipped.Load() }

func (t *Task) loop(ctx context.Context, interval time.Duration, fn Func, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t.run(ctx, fn, logger)

		// Ticks that fired during the run are dropped.
		select {
		case <-ticker.C:
			t.skipped.Add(1)
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Task) run(ctx context.Context, fn Func, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	t.runs.Add(1)
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		logger.Debug("task run failed", "task", t.name, "error", err)
	}
}

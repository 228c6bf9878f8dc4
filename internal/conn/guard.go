package conn

import (
	"sync"
	"time"
)

// GuardState is the phase of a guarded operation.
type GuardState int

const (
	GuardIdle GuardState = iota
	GuardInProgress
	GuardCooldown
)

func (s GuardState) String() string {
	switch s {
	case GuardIdle:
		return "idle"
	case GuardInProgress:
		return "in-progress"
	case GuardCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Guard keeps a single instance of an operation in flight. Duplicate calls
// short-circuit instead of stacking. After Release the guard stays closed for
// the cooldown; if Release is never called it is forced after maxHold.
type Guard struct {
	mu       sync.Mutex
	state    GuardState
	epoch    uint64
	cooldown time.Duration
	maxHold  time.Duration
	timer    *time.Timer
}

// NewGuard returns an idle guard.
func NewGuard(cooldown, maxHold time.Duration) *Guard {
	return &Guard{cooldown: cooldown, maxHold: maxHold}
}

// TryAcquire moves Idle to InProgress and reports whether it did.
func (g *Guard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GuardIdle {
		return false
	}
	g.state = GuardInProgress
	g.epoch++
	if g.maxHold > 0 {
		epoch := g.epoch
		g.timer = time.AfterFunc(g.maxHold, func() { g.forceRelease(epoch) })
	}
	return true
}

// Release ends the operation and enters the cooldown.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GuardInProgress {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.enterCooldownLocked()
}

func (g *Guard) forceRelease(epoch uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GuardInProgress || g.epoch != epoch {
		return
	}
	g.timer = nil
	g.enterCooldownLocked()
}

func (g *Guard) enterCooldownLocked() {
	if g.cooldown <= 0 {
		g.state = GuardIdle
		return
	}
	g.state = GuardCooldown
	epoch := g.epoch
	time.AfterFunc(g.cooldown, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.state == GuardCooldown && g.epoch == epoch {
			g.state = GuardIdle
		}
	})
}

// State returns the current phase.
func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Do runs fn when the guard can be acquired and reports whether it ran.
func (g *Guard) Do(fn func()) bool {
	if !g.TryAcquire() {
		return false
	}
	defer g.Release()
	fn()
	return true
}

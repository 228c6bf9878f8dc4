package conn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/five82/eaglebridge/internal/wire"
)

// State is the Initiator's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

const (
	DefaultProbeTimeout  = 5 * time.Second
	DefaultErrorCooldown = 3 * time.Second
)

// Transition is published for every state change.
type Transition struct {
	From State
	To   State
	Err  error
	At   time.Time
}

// Options wire a Machine to its probe and observers.
type Options struct {
	// Probe performs one liveness check against the peer.
	Probe func(ctx context.Context) error
	// Rediscover runs after a failed probe or a lost connection.
	Rediscover func(ctx context.Context)
	// OnChange observes every transition; the owner starts and stops the
	// poll loop from here.
	OnChange func(Transition)
	// OnDisconnect runs on every Disconnect call.
	OnDisconnect func()

	ProbeTimeout  time.Duration
	ErrorCooldown time.Duration
	Quality       *Quality
	Logger        *slog.Logger
}

// Machine owns the connection lifecycle. Only Connect, Fail and Disconnect
// mutate it.
type Machine struct {
	opts Options

	mu      sync.Mutex
	state   State
	lastErr error
	epoch   uint64
	timer   *time.Timer
}

// New returns a Disconnected machine.
func New(opts Options) *Machine {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.ErrorCooldown <= 0 {
		opts.ErrorCooldown = DefaultErrorCooldown
	}
	if opts.Quality == nil {
		opts.Quality = &Quality{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Machine{opts: opts}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error behind the most recent Error transition.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Quality returns the liveness statistics tracker.
func (m *Machine) Quality() *Quality {
	return m.opts.Quality
}

// Connect probes the peer. It is a no-op while already Connecting or
// Connected. A failed probe moves to Error, runs rediscovery and schedules
// the automatic return to Disconnected.
func (m *Machine) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Connecting || m.state == Connected {
		m.mu.Unlock()
		return nil
	}
	m.stopTimerLocked()
	tr := m.setLocked(Connecting, nil)
	m.mu.Unlock()
	m.emit(tr)

	probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	start := time.Now()
	err := m.opts.Probe(probeCtx)
	cancel()

	if err == nil {
		m.opts.Quality.RecordSuccess(time.Since(start))
		m.mu.Lock()
		if m.state != Connecting {
			m.mu.Unlock()
			return nil
		}
		tr = m.setLocked(Connected, nil)
		m.mu.Unlock()
		m.emit(tr)
		return nil
	}

	err = wire.Classify(err)
	m.fail(ctx, Connecting, err)
	return err
}

// Fail reports a transport failure seen while Connected. The failure is
// always counted; states other than Connected ignore it otherwise.
func (m *Machine) Fail(ctx context.Context, err error) {
	m.fail(ctx, Connected, wire.Classify(err))
}

func (m *Machine) fail(ctx context.Context, expect State, err error) {
	m.opts.Quality.RecordFailure(err)
	m.mu.Lock()
	if m.state != expect {
		m.mu.Unlock()
		return
	}
	tr := m.setLocked(Error, err)
	m.stopTimerLocked()
	epoch := m.epoch
	m.timer = time.AfterFunc(m.opts.ErrorCooldown, func() { m.recover(epoch) })
	m.mu.Unlock()
	m.emit(tr)

	if m.opts.Rediscover != nil {
		m.opts.Rediscover(ctx)
	}
}

func (m *Machine) recover(epoch uint64) {
	m.mu.Lock()
	if m.state != Error || m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	tr := m.setLocked(Disconnected, nil)
	m.mu.Unlock()
	m.emit(tr)
}

// Disconnect moves to Disconnected unconditionally. Calling it again is
// harmless.
func (m *Machine) Disconnect() {
	m.mu.Lock()
	m.stopTimerLocked()
	var (
		tr      Transition
		changed bool
	)
	if m.state != Disconnected {
		tr = m.setLocked(Disconnected, nil)
		changed = true
	}
	m.mu.Unlock()

	if m.opts.OnDisconnect != nil {
		m.opts.OnDisconnect()
	}
	if changed {
		m.emit(tr)
	}
}

func (m *Machine) stopTimerLocked() {
	m.epoch++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) setLocked(to State, err error) Transition {
	tr := Transition{From: m.state, To: to, Err: err, At: time.Now()}
	m.state = to
	if err != nil {
		m.lastErr = err
	}
	return tr
}

func (m *Machine) emit(tr Transition) {
	attrs := []any{"from", tr.From.String(), "to", tr.To.String()}
	if tr.Err != nil {
		attrs = append(attrs, "error", tr.Err, "kind", wire.Label(tr.Err))
		m.opts.Logger.Warn("connection state changed", attrs...)
	} else {
		m.opts.Logger.Info("connection state changed", attrs...)
	}
	if m.opts.OnChange != nil {
		m.opts.OnChange(tr)
	}
}

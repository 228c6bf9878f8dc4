package settings

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/eaglebridge/internal/wire"
)

// Change describes the effect of one applied push.
type Change struct {
	Snapshot Snapshot
	OldPort  int
	NewPort  int
}

// PortChanged reports whether the push moved the listening port.
func (c Change) PortChanged() bool {
	return c.NewPort != 0 && c.NewPort != c.OldPort
}

// Mirror is the Responder's cached copy of the Initiator's settings. Pushes
// replace it wholesale; there is no merge.
type Mirror struct {
	mu         sync.RWMutex
	current    Snapshot
	has        bool
	updatedAt  time.Time
	listenPort int
}

// NewMirror returns an empty mirror for a Responder listening on port.
func NewMirror(listenPort int) *Mirror {
	return &Mirror{listenPort: listenPort}
}

// Apply validates update and replaces the cached snapshot. A port carried in
// preferences wins over the one inside the snapshot. An update without a
// settings body is a port-only push: it reports the port delta and leaves
// the cache untouched. The listening port is not touched either; the caller
// restarts and then calls SetListenPort.
func (m *Mirror) Apply(update wire.SettingsUpdate) (Change, error) {
	if update.Type != "" && update.Type != wire.SettingsUpdateType {
		return Change{}, fmt.Errorf("%w: unexpected type %q", ErrInvalid, update.Type)
	}

	var (
		snap     Snapshot
		withBody = len(update.Settings) > 0 && string(update.Settings) != "null"
	)
	if withBody {
		decoded, err := Decode(update.Settings)
		if err != nil {
			return Change{}, err
		}
		snap = decoded
	}

	port := update.Preferences.CommunicationPort
	if port == 0 {
		port = snap.CommunicationPort
	}
	if port != 0 {
		if err := ValidatePort(port); err != nil {
			return Change{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	change := Change{OldPort: m.listenPort, NewPort: port}
	if !withBody {
		change.Snapshot = m.current
		return change, nil
	}
	if port != 0 {
		snap.CommunicationPort = port
	}
	m.current = snap
	m.has = true
	m.updatedAt = time.Now()
	change.Snapshot = snap
	return change, nil
}

// Current returns the cached snapshot and whether one was ever received.
func (m *Mirror) Current() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.has
}

// UpdatedAt returns when the last push was applied.
func (m *Mirror) UpdatedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updatedAt
}

// SetListenPort records the port the Responder actually listens on.
func (m *Mirror) SetListenPort(port int) {
	m.mu.Lock()
	m.listenPort = port
	m.mu.Unlock()
}

// ListenPort returns the port the Responder listens on.
func (m *Mirror) ListenPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listenPort
}

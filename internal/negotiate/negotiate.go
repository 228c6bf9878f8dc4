package negotiate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/five82/eaglebridge/internal/conn"
	"github.com/five82/eaglebridge/internal/settings"
	"github.com/five82/eaglebridge/internal/wire"
)

// Per-attempt deadlines.
const (
	BroadcastTimeout = 1 * time.Second
	DetectTimeout    = 1 * time.Second
	SwitchTimeout    = 3 * time.Second
)

var (
	// ErrPeerUnreachable means no candidate accepted a settings push. The
	// change still applies locally; the peer must be restarted by hand.
	ErrPeerUnreachable = errors.New("peer unreachable on every candidate port")
	// ErrNotFound means a detection sweep found no Responder.
	ErrNotFound = errors.New("no responder found on candidate ports")
	// ErrBusy means a guarded operation was already in flight.
	ErrBusy = errors.New("negotiation already in progress")
)

// Transport is the port-addressed subset of the Responder API negotiation
// needs. client.Ports satisfies it.
type Transport interface {
	Ping(ctx context.Context, port int) (wire.PingResponse, error)
	SendPortInfo(ctx context.Context, port int, info wire.PortInfo) (wire.Ack, error)
	PushSettings(ctx context.Context, port int, update wire.SettingsUpdate) (wire.Ack, error)
}

// DefaultCandidates returns the fixed candidate range 8080-8089.
func DefaultCandidates() []int {
	ports := make([]int, 0, 10)
	for p := 8080; p <= 8089; p++ {
		ports = append(ports, p)
	}
	return ports
}

// Order returns candidates with first moved to the front. first is included
// even when it is outside the candidate set. Zero first leaves the order
// unchanged.
func Order(first int, candidates []int) []int {
	out := make([]int, 0, len(candidates)+1)
	seen := make(map[int]struct{}, len(candidates)+1)
	if first > 0 {
		out = append(out, first)
		seen[first] = struct{}{}
	}
	for _, p := range candidates {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// LocalPort reports the port the Initiator wants and when it was chosen, in
// Unix millis.
type LocalPort func() (port int, lastUpdated int64)

// Broadcaster advertises the Initiator's chosen port. A Responder holding an
// older choice moves to it.
type Broadcaster struct {
	transport  Transport
	candidates []int
	local      LocalPort
	guard      *conn.Guard
	logger     *slog.Logger
	now        func() time.Time
}

// NewBroadcaster builds a Broadcaster announcing the port returned by local.
func NewBroadcaster(t Transport, candidates []int, local LocalPort, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		transport:  t,
		candidates: append([]int(nil), candidates...),
		local:      local,
		guard:      conn.NewGuard(0, 2*BroadcastTimeout*time.Duration(len(candidates)+1)),
		logger:     logger,
		now:        time.Now,
	}
}

// Cycle runs one broadcast pass, starting at the local port, and stops at
// the first candidate that accepts. moving reports whether that Responder
// is switching to the local port. A Cycle started while another is running
// returns ErrBusy without sending anything.
func (b *Broadcaster) Cycle(ctx context.Context) (port int, moving bool, err error) {
	if !b.guard.TryAcquire() {
		return 0, false, ErrBusy
	}
	defer b.guard.Release()

	local, _ := b.local()
	for _, candidate := range Order(local, b.candidates) {
		if err := ctx.Err(); err != nil {
			return 0, false, wire.Classify(err)
		}
		if moved, sendErr := b.Announce(ctx, candidate); sendErr == nil {
			return candidate, moved, nil
		}
	}
	return 0, false, ErrNotFound
}

// Announce sends the local port to the Responder on port once and reports
// whether it is moving there.
func (b *Broadcaster) Announce(ctx context.Context, port int) (bool, error) {
	local, lastUpdated := b.local()
	info := wire.PortInfo{
		AEPort:      local,
		Source:      wire.PortInfoSource,
		Timestamp:   b.now().UnixMilli(),
		LastUpdated: lastUpdated,
	}
	attempt, cancel := context.WithTimeout(ctx, BroadcastTimeout)
	defer cancel()
	ack, err := b.transport.SendPortInfo(attempt, port, info)
	if err != nil {
		return false, err
	}
	if ack.PortChanged {
		b.logger.Info("responder moving to advertised port", "via_port", port, "port", local)
	} else {
		b.logger.Debug("port broadcast accepted", "peer_port", port, "local_port", local)
	}
	return ack.PortChanged, nil
}

// Detector finds the Responder by sweeping /ping across the candidates.
type Detector struct {
	transport  Transport
	candidates []int
	service    string
	logger     *slog.Logger
}

// NewDetector builds a Detector that accepts only replies naming service.
func NewDetector(t Transport, candidates []int, service string, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if service == "" {
		service = wire.ServiceName
	}
	return &Detector{
		transport:  t,
		candidates: append([]int(nil), candidates...),
		service:    service,
		logger:     logger,
	}
}

// Detect sweeps starting at current and returns the first port whose /ping
// names the expected service. changed reports whether that differs from
// current.
func (d *Detector) Detect(ctx context.Context, current int) (port int, changed bool, err error) {
	for _, candidate := range Order(current, d.candidates) {
		if err := ctx.Err(); err != nil {
			return 0, false, wire.Classify(err)
		}
		attempt, cancel := context.WithTimeout(ctx, DetectTimeout)
		ping, err := d.transport.Ping(attempt, candidate)
		cancel()
		if err != nil {
			continue
		}
		if ping.Service != d.service {
			d.logger.Debug("ignoring foreign service", "port", candidate, "service", ping.Service)
			continue
		}
		if candidate != current {
			d.logger.Info("responder found on new port", "old_port", current, "new_port", candidate)
		}
		return candidate, candidate != current, nil
	}
	return 0, false, ErrNotFound
}

// Switcher pushes a locally changed port to the Responder.
type Switcher struct {
	transport  Transport
	candidates []int
	guard      *conn.Guard
	logger     *slog.Logger
}

// NewSwitcher builds a Switcher over the candidate set.
func NewSwitcher(t Transport, candidates []int, logger *slog.Logger) *Switcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Switcher{
		transport:  t,
		candidates: append([]int(nil), candidates...),
		guard:      conn.NewGuard(0, SwitchTimeout*time.Duration(len(candidates)+2)),
		logger:     logger,
	}
}

// Propagate pushes snap with newPort to the Responder, trying oldPort first
// and then the candidates, and returns the port that accepted. When nothing
// accepts it returns ErrPeerUnreachable.
func (s *Switcher) Propagate(ctx context.Context, oldPort, newPort int, snap settings.Snapshot) (int, error) {
	if err := settings.ValidatePort(newPort); err != nil {
		return 0, err
	}
	if !s.guard.TryAcquire() {
		return 0, ErrBusy
	}
	defer s.guard.Release()

	snap.CommunicationPort = newPort
	update, err := settings.NewUpdate(snap)
	if err != nil {
		return 0, fmt.Errorf("build settings update: %w", err)
	}

	var lastErr error
	for _, port := range Order(oldPort, s.candidates) {
		if err := ctx.Err(); err != nil {
			return 0, wire.Classify(err)
		}
		attempt, cancel := context.WithTimeout(ctx, SwitchTimeout)
		_, err := s.transport.PushSettings(attempt, port, update)
		cancel()
		if err == nil {
			s.logger.Info("port change delivered", "via_port", port, "new_port", newPort)
			return port, nil
		}
		lastErr = err
		s.logger.Debug("port change attempt failed", "port", port, "error", err)
	}
	s.logger.Warn("port change not delivered; restart the asset manager side manually",
		"old_port", oldPort, "new_port", newPort, "last_error", lastErr)
	return 0, ErrPeerUnreachable
}

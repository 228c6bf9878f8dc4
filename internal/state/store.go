package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/eaglebridge/internal/conn"
	"github.com/five82/eaglebridge/internal/wire"
)

// Snapshot represents the latest connection view available to the monitor.
type Snapshot struct {
	State               conn.State
	Port                int
	ClientID            string
	Quality             conn.QualitySnapshot
	Peer                wire.StatusResponse
	HasPeer             bool
	LastMessage         string
	Received            int
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive poll failures
	// LogsRevision changes whenever merged logs touched the selected view.
	LogsRevision uint64
}

// IsOffline returns true when the Responder has been unreachable for
// multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// SetState records a connection transition.
func (s *Store) SetState(st conn.State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.State = st
	if err != nil {
		s.snapshot.LastError = err
	}
	s.snapshot.LastUpdated = time.Now()
}

// SetPort records the port the Initiator currently targets.
func (s *Store) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Port = port
}

// SetClientID records the id the Responder knows this Initiator by.
func (s *Store) SetClientID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.ClientID = id
}

// SetQuality replaces the liveness statistics.
func (s *Store) SetQuality(q conn.QualitySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Quality = q
}

// SetPeer records the Responder's own view of the connection.
func (s *Store) SetPeer(status wire.StatusResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Peer = status
	s.snapshot.HasPeer = true
}

// LogsChanged tells the monitor the selected log view needs re-rendering.
func (s *Store) LogsChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LogsRevision++
}

// Update records the outcome of one poll. When err is non-nil the previous
// data is kept but the error is recorded for visibility.
func (s *Store) Update(received []wire.Envelope, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastUpdated = time.Now()
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}

	s.snapshot.Received += len(received)
	if n := len(received); n > 0 {
		s.snapshot.LastMessage = received[n-1].Type
	}
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Quality.RTTs = append([]time.Duration(nil), s.snapshot.Quality.RTTs...)
	snap.Peer.SelectedFiles = append([]string(nil), s.snapshot.Peer.SelectedFiles...)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

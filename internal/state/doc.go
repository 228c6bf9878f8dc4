// Package state provides thread-safe state management for the Initiator.
//
// # Overview
//
// This package implements a simple but thread-safe store for sharing the
// connection view between the Initiator's background tasks and the watch
// monitor. It acts as the coordination point where polling updates meet UI
// rendering.
//
// # Architecture
//
// The package follows a producer-consumer pattern:
//
//	Producers (Initiator):          Consumer (watch):
//	┌──────────────────────┐       ┌──────────────────┐
//	│ state transitions    │       │                  │
//	│ poll results         │──────→│ store.Snapshot() │
//	│ quality / peer status│(mutex)│      ↓           │
//	└──────────────────────┘       │  render view     │
//	                               └──────────────────┘
//
// # Core Types
//
// Snapshot carries the connection state, the targeted port, liveness
// statistics, the Responder's own status report and poll counters.
// IsOffline reports true after two consecutive poll failures.
//
// Store guards a Snapshot with a sync.RWMutex. Writers use the narrow
// setters (SetState, SetPort, SetQuality, SetPeer) or Update for poll
// outcomes. Snapshot returns a copy whose slices and error do not alias the
// stored value, so the reader may hold it across renders.
//
// # Error Semantics
//
// A failed poll keeps the previous data and records the error; a successful
// poll clears it and resets the failure counter. A state transition records
// its error but never clears one, so the monitor still shows why the last
// Error happened after the machine has returned to Disconnected.
package state

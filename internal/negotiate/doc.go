// Package negotiate lets the Initiator and Responder agree on a listening
// port without a shared registry.
//
// # Protocol
//
// Three independent mechanisms cooperate:
//
//   - Broadcast: every few seconds the Initiator POSTs its own port to
//     /ae-port-info on each candidate except its own, stopping at the first
//     acceptance. The Responder only records the announcement.
//   - Detection: after a failed liveness probe the Initiator sweeps /ping
//     over the candidates, starting at its last known port, and adopts the
//     first port whose reply names the expected service.
//   - Switch: when the user changes the port, the new value is pushed over
//     /settings-sync to the old port first and then each candidate. If no
//     Responder accepts, the change still applies locally and the user is
//     told to restart the Responder.
//
// Only the Responder ever moves its listener, and only in response to a
// settings push. Broadcasts never trigger a restart, so detection and
// broadcast cannot chase each other between ports.
//
// # Concurrency
//
// Broadcaster and Switcher hold a conn.Guard: a second Cycle or Propagate
// while one is in flight returns ErrBusy immediately. Every attempt carries
// its own deadline (1s broadcast, 1s detection, 3s switch).
package negotiate

// Package app is the composition root for both sides of the bridge.
//
// # Initiator
//
// NewInitiator owns every piece of polling-side state: the HTTP client, the
// connection machine, the seen set, the merged log history and the three
// negotiators. Start launches the background tasks on a sched.Group:
//
//   - broadcast: advertise this side's port to the candidate range
//   - logship: post unsent local log lines to /eagle-logs while connected
//   - autoconnect: retry Connect while disconnected (optional)
//
// Entering Connected starts the poll and status tasks; leaving it cancels
// them. A transport failure during a poll moves the machine to Error, which
// sweeps the candidate ports and retargets the client if the Responder is
// found elsewhere.
//
// SetPort pushes a new port to the Responder, trying the old port first. The
// change is applied and persisted locally even when no Responder accepts it;
// the returned error then tells the user to restart the other side by hand.
//
// # Responder
//
// NewResponder wraps server.Server. The listen port comes from persisted
// preferences when present. Start binds, queues a "ready" status message
// and moves buffered log lines into the /messages batch on a timer. Every
// listener move is persisted.
package app

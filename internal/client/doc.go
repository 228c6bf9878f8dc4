// Package client provides the Initiator's HTTP client for the Responder API.
//
// # Overview
//
// The Initiator never listens. Everything it knows about the Responder comes
// through this client: liveness probes, the short-poll message drain, status
// reads, settings pushes, port announcements and log shipping.
//
// # Client Usage
//
//	c, err := client.NewClient("127.0.0.1", 8080)
//	if err != nil {
//		return err
//	}
//	ping, err := c.Ping(ctx)
//	batch, err := c.FetchMessages(ctx, clientID)
//
// WithPort returns a copy bound to another port that shares the connection
// pool. Ports exposes the same calls addressed by port number, which is how
// port negotiation sweeps the candidate range.
//
// # Endpoints
//
//   - GET /ping: liveness and service identity
//   - GET /messages?clientId=: drains queued envelopes and shipped logs
//   - POST /<event>-message: delivers one envelope to the Responder
//   - GET /ae-status: Responder-side view of the connection
//   - POST /settings-sync: settings push, may move the Responder's port
//   - POST /ae-port-info: announces the Initiator's port
//   - POST /eagle-logs, /clear-logs: log exchange
//
// # Timeouts
//
// Every call derives its own deadline from the caller's context:
//
//   - Ping: 5 seconds
//   - Port announcement: 1 second
//   - Settings push: 3 seconds
//   - Everything else: 5 seconds
//
// # Error Handling
//
// Transport failures are classified into the wire taxonomy, so callers test
// with errors.Is(err, wire.ErrTransportTimeout) and friends. A 4xx/5xx status
// or a {success:false} acknowledgement wraps ErrRejected and is not a
// transport failure. An undecodable body wraps wire.ErrMalformedResponse.
//
// The client does not retry. The connection state machine and the poll
// cadence decide what happens after a failure.
package client

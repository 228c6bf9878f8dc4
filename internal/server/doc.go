// Package server is the Responder's HTTP endpoint, built on gin.
//
// The Responder never initiates traffic. Outbound envelopes wait in a
// bounded queue until the Initiator polls GET /messages, which drains the
// queue and the pending log batch in one response. Inbound envelopes arrive
// on POST /<event>-message and are decoded into typed wire messages before
// reaching the InboundHandler; unknown types are logged and acknowledged.
//
// A settings push that carries a new communication port moves the listener.
// The new port is bound before the old listener is shut down, and a
// port_changed envelope is queued for the Initiator's next poll. A bind that
// hits an address already in use walks upward one port at a time, 250ms
// apart, for at most ten attempts.
//
// Port announcements on /ae-port-info are recorded but never move the
// listener.
package server

// Package conn holds the Initiator's connection state machine, the guard
// used to keep negotiation and restarts single-flight, and the round-trip
// quality window shown by the monitor.
package conn

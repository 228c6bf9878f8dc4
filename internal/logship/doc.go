// Package logship moves human-readable log lines between the two sides.
//
// The Responder keeps a bounded Buffer and a set of already-shipped ids; a
// periodic task calls Unsent and hands the result to the server, which
// delivers it with the next /messages reply. The Initiator folds those
// batches into a History keyed by entry id (timestamp+message when there is
// no id), sorted by timestamp and bounded oldest-first.
//
// Clearing is a handshake: the Initiator asks the Responder to wipe its
// buffer, then ignores Responder entries for a short grace window so lines
// already in flight do not reappear.
//
// Handler adapts either store to log/slog, which is how component log lines
// end up in the buffer in the first place.
package logship

// Package wire defines the JSON shapes exchanged between the Initiator and
// the Responder.
//
// # Envelopes
//
// Every bus message travels as an Envelope:
//
//	{"type": "status", "data": {...}, "clientId": "c1", "timestamp": 1700000000123}
//
// The pair type+timestamp is the envelope's identity; the Initiator uses it
// to drop replays delivered by overlapping polls. Decode turns an envelope
// into one of the typed messages (FileExport, Status, AEStatus, PortChanged,
// SettingsAck, Notification). Types this build does not know decode to
// Unknown so the caller can log and drop them explicitly.
//
// # Endpoint payloads
//
// PingResponse, MessagesResponse, StatusResponse, SettingsUpdate, PortInfo
// and LogsPayload mirror the Responder's endpoints one to one. Ack is the
// shared {success, error} reply of the POST channels.
//
// # Errors
//
// Classify maps low-level network and JSON errors onto the bus taxonomy:
// ErrTransportTimeout, ErrTransportRefused, ErrMalformedResponse,
// ErrPortConflict and ErrUserCancelled. Callers branch with errors.Is.
package wire

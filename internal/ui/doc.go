// Package ui is the Initiator's terminal monitor, built on Bubble Tea.
//
// The screen has three parts:
//
//   - a two-line header: connection state, port, client id, round-trip
//     quality, and the Responder's own view from /ae-status
//   - a scrolling viewport over the merged log history, one source at a time
//   - a footer with the last action result and key help
//
// The model never talks to the network itself. A tick re-reads the
// state.Store snapshot and the logship.History; key presses call the
// Controller (the Initiator) from a tea.Cmd so the UI stays responsive while
// a probe or clear is in flight.
package ui

// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains a single WebSocket connection to the event hub
//   - Drives the Idle/Connecting/Connected/Disconnected/ManuallyClosed state machine
//   - Reconnects after unexpected closes until the attempt ceiling, then gives up
//   - Sends a ping frame on a fixed interval while connected
//   - Delivers inbound frames, in order, to a single Listener
//
// The transport is built by an injectable ClientFactory and all timers come
// from an injectable clock, so the state machine runs deterministically in
// tests (see the conntest package).
package connection

// Package connection implements the chat session engine.
//
// The engine:
//   - Owns exactly one WebSocket transport handle at a time
//   - Attaches the session credential as a Cookie header at dial time
//   - Decodes inbound frames and turns them into typed events
//   - Tears the transport down when no liveness signal arrives in time
//   - Reconnects after every close while auto-reconnect is enabled
//
// All transport callbacks, heartbeat expiries and caller requests are
// handled on a single goroutine, so the state machine needs no locks.
package connection

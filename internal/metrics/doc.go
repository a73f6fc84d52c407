// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Transport handles created, reconnects and liveness timeouts
//   - Inbound frames by tag and decode failures by kind
//   - Protocol errors by reason and outbound messages
//   - Current connection state
//   - Archive flushes and insert failures
package metrics

// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state, dial failures and reconnect attempts
//   - Inbound frames by tag, decode and classification failures
//   - Outbound commands by type
//   - Correlated request outcomes and latencies
//   - History sizes per category and dropped notifications
//
// A nil *Metrics is valid and records nothing.
package metrics

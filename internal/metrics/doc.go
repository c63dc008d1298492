// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Link state, connects and disconnects by class
//   - Reconnect attempts and backoff delays
//   - Health check failures
//   - Outbound queue depth, evictions and flushes
//   - Inbound message and malformed frame counts
//   - External signals relayed by the bridge
package metrics

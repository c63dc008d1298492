// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains one logical link to a WebSocket endpoint
//   - Reconnects with capped exponential backoff until attempts run out
//   - Buffers outbound payloads while the link is down and flushes them in order
//   - Probes liveness with ping/pong and force-closes silent links
//   - Publishes lifecycle and inbound frames on an events.Dispatcher
package connection

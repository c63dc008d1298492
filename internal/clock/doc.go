// Package clock provides the Timer capability used by the link for every
// delayed callback: reconnect backoff, health-check intervals and pong
// timeouts.
//
// Production code uses Real, which is backed by time.AfterFunc. Tests use
// Manual, which only fires callbacks when the test advances it.
package clock

// Package stream provides the live-connection registry and the
// best-effort event broker that pushes freshly created events to a
// recipient's open stream.
package stream

// Handle is one open, writable, long-lived output channel to a
// connected subject. Implementations must serialize concurrent
// WriteEvent calls so frames for a single subject are delivered in
// call order.
type Handle interface {
	// WriteEvent writes one discrete event frame. A failed write means
	// the peer is gone; callers treat it as a disconnect.
	WriteEvent(data []byte) error

	// Close releases the handle and wakes its serving goroutine.
	// Closing an already-closed handle is a no-op.
	Close()

	// Done is closed when the handle has been closed, either by its
	// serving goroutine or by the registry replacing it.
	Done() <-chan struct{}
}

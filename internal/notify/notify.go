// Package notify delivers "something changed upstream" signals to the
// sync orchestrator.
//
// Two strategies exist, one per backend mode:
//
//   - Poller (local mode): fires on a fixed interval, on explicit Wake
//     calls, and when the embedded database file changes on disk.
//   - Push (cloud mode): subscribes to the hosted backend's realtime
//     websocket and fires on any insert/update/delete event for the
//     watched tables.
//
// Only one notifier is active at a time. Both are safe to Stop more
// than once, and Stop tears down all background work before returning.
package notify

import "context"

// Notifier signals that authoritative state may have changed. The
// callback passed at construction is invoked from a background
// goroutine; it must be safe for concurrent use.
type Notifier interface {
	// Start begins delivering signals until ctx is cancelled or Stop
	// is called.
	Start(ctx context.Context) error

	// Stop tears down timers, watches and connections. Idempotent.
	Stop()
}

// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the native primitives consumed by both notification models and the
// channel-side contracts they rely on. Everything here is treated as opaque by
// the engines: a primitive either returns data or an error code.

package api

// Selectable is a channel that can be registered with a readiness multiplexer.
type Selectable interface {
	// FD returns the native descriptor polled for this channel.
	FD() int
}

// OpsValidator is implemented by channels that restrict the operations they
// may be registered for.
type OpsValidator interface {
	ValidOps() Ops
}

// Connectable is implemented by channels with a non-blocking connect in
// progress. CONNECT readiness is reported only while ConnectionPending is true.
type Connectable interface {
	ConnectionPending() bool
}

// WakeupToken is a native doorbell occupying one slot of a poll batch.
type WakeupToken interface {
	// FD returns the descriptor placed in the batch slot.
	FD() int
	// Signal makes a poll waiting on FD return. Idempotent until Reset.
	Signal() error
	// Reset drains the token so the next poll does not return early.
	Reset() error
	Close() error
}

// NativePoller is the capacity-limited readiness wait primitive.
type NativePoller interface {
	// Poll waits up to timeoutMs (negative blocks) on fds. On input events[i]
	// holds the bits requested for fds[i]; on return it holds the reported
	// bits (EventError and EventHangup may be reported unrequested). It
	// returns the number of slots with non-zero bits.
	Poll(fds []int, events []NativeEvents, timeoutMs int) (int, error)

	// NewToken creates a wakeup token usable in Poll.
	NewToken() (WakeupToken, error)
}

// Port is the shared completion queue of the completion model.
type Port interface {
	// Bind associates a native handle with the port under key.
	Bind(handle uintptr, key CompletionKey) error
	// Get blocks until a completion is available. It fails with ErrClosed
	// once the port is closed.
	Get() (Completion, error)
	// Post enqueues a notification without a result handle.
	Post(key CompletionKey) error
	Close() error
}

// ContextAllocator is implemented by ports whose result handles must refer to
// memory the OS writes into (OVERLAPPED on Windows).
type ContextAllocator interface {
	AllocContext() (ResultHandle, error)
	FreeContext(h ResultHandle)
}

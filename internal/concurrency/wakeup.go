// File: internal/concurrency/wakeup.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WakeupSignal is a doorbell that may be rung from any goroutine. Ringing is
// idempotent per round: only the first Signal after a Reset runs the ring hook.

package concurrency

import "sync"

// WakeupSignal coalesces wakeups between resets.
type WakeupSignal struct {
	mu      sync.Mutex
	pending bool
	ring    func()
	clear   func()
}

// NewWakeupSignal returns a signal that calls ring on the first Signal of a
// round and clear on every Reset. Both hooks run under the signal's lock, so
// a Signal never interleaves with a Reset. Either hook may be nil.
func NewWakeupSignal(ring, clear func()) *WakeupSignal {
	return &WakeupSignal{ring: ring, clear: clear}
}

// Signal marks the signal pending. It reports whether this call rang it.
func (w *WakeupSignal) Signal() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending {
		return false
	}
	w.pending = true
	if w.ring != nil {
		w.ring()
	}
	return true
}

// Pending reports whether a Signal happened since the last Reset.
func (w *WakeupSignal) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Reset clears the signal, reporting whether it was pending.
func (w *WakeupSignal) Reset() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	was := w.pending
	w.pending = false
	if w.clear != nil {
		w.clear()
	}
	return was
}

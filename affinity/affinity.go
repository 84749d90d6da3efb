// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Thread pinning for long-lived worker goroutines. Platform-specific
// implementations are located in affinity_linux.go, affinity_windows.go and
// affinity_stub.go.

package affinity

import "runtime"

// Pin locks the calling goroutine to its OS thread and binds the thread to
// the n-th CPU the process may run on, wrapping around. On success the
// goroutine must keep the thread locked: when it exits the runtime discards
// the pinned thread instead of reusing it.
func Pin(n int) error {
	if n < 0 {
		n = -n
	}
	runtime.LockOSThread()
	if err := pin(n); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}

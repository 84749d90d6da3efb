// File: api/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Capability interfaces of the two notification models and of the engine
// that fronts whichever one was chosen at startup.

package api

import (
	"context"
	"time"
)

// Multiplexer is the readiness model: the caller asks which registered
// channels are ready.
type Multiplexer interface {
	SelectNow() (int, error)
	// Select runs one round; a negative timeout blocks until a channel is
	// ready or Wakeup is called.
	Select(timeout time.Duration) (int, error)
	Wakeup()
	IsOpen() bool
	Close() error
}

// Dispatcher is the completion model: workers drain a completion port and
// resolve the matching pending operations.
type Dispatcher interface {
	SubmitTask(fn func()) error
	// Shutdown stops accepting new work; workers exit once every channel is
	// disassociated.
	Shutdown()
	// ShutdownNow closes every associated channel and releases the workers.
	ShutdownNow()
	AwaitTermination(ctx context.Context) error
	Close() error
}

// Engine is the process-facing handle over one back end.
type Engine interface {
	GracefulShutdown

	// Backend names the notification model in use.
	Backend() string
	// Wakeup interrupts a blocked readiness round. It is a no-op for the
	// completion model.
	Wakeup()
	// SubmitTask runs fn off the caller's goroutine.
	SubmitTask(fn func()) error
	Control() Control
}

// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "context"

// GracefulShutdown unifies orderly teardown of engine components.
type GracefulShutdown interface {
	// Shutdown stops internal services and releases their resources,
	// giving up when ctx is done.
	Shutdown(ctx context.Context) error
}

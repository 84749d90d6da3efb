//go:build !windows
// +build !windows

// File: completion/port_other.go
// Author: momentics <momentics@gmail.com>

package completion

import "github.com/momentics/hioload-aio/api"

// NewPort returns the platform completion port. Without a native one the
// port lives in memory and completions are delivered by the caller's devices.
func NewPort() (api.Port, error) {
	return NewMemoryPort(), nil
}

//go:build !linux && !windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>

package affinity

import "github.com/momentics/hioload-aio/api"

func pin(int) error {
	return api.NewError(api.ErrCodeNotSupported, "thread affinity not supported on this platform")
}

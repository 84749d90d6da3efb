//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub native poller for platforms served by the completion model or not
// supported at all.

package reactor

import "github.com/momentics/hioload-aio/api"

// NewNativePoller returns api.ErrNotSupported on this platform. Supply
// Config.Native explicitly to use a Selector here.
func NewNativePoller() (api.NativePoller, error) {
	return nil, api.NewError(api.ErrCodeNotSupported, "reactor: no native readiness poller on this platform")
}

//go:build windows
// +build windows

// File: completion/port_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows I/O completion port. Result handles are the addresses of OVERLAPPED
// structures owned by the port, which the kernel writes into when the
// operation finishes.

package completion

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-aio/api"
)

// IOCPPort implements api.Port and api.ContextAllocator with IOCP.
type IOCPPort struct {
	iocp   windows.Handle
	closed atomic.Bool

	mu         sync.Mutex
	overlapped map[api.ResultHandle]*windows.Overlapped
}

var (
	_ api.Port             = (*IOCPPort)(nil)
	_ api.ContextAllocator = (*IOCPPort)(nil)
)

// NewPort returns the platform completion port.
func NewPort() (api.Port, error) {
	return NewIOCPPort()
}

// NewIOCPPort creates a completion port.
func NewIOCPPort() (*IOCPPort, error) {
	h, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, api.NativeError("CreateIoCompletionPort", err)
	}
	return &IOCPPort{iocp: h, overlapped: make(map[api.ResultHandle]*windows.Overlapped)}, nil
}

// Bind associates a handle with the port.
func (p *IOCPPort) Bind(handle uintptr, key api.CompletionKey) error {
	if p.closed.Load() {
		return api.ErrClosed
	}
	if _, err := windows.CreateIoCompletionPort(windows.Handle(handle), p.iocp, uintptr(key), 0); err != nil {
		return api.NativeError("CreateIoCompletionPort", err)
	}
	return nil
}

// Get blocks for the next completion packet.
func (p *IOCPPort) Get() (api.Completion, error) {
	var (
		bytes uint32
		key   uintptr
		ov    *windows.Overlapped
	)
	err := windows.GetQueuedCompletionStatus(p.iocp, &bytes, &key, &ov, windows.INFINITE)
	if ov == nil {
		if err != nil {
			if p.closed.Load() {
				return api.Completion{}, api.ErrClosed
			}
			return api.Completion{}, api.NativeError("GetQueuedCompletionStatus", err)
		}
		return api.Completion{Key: api.CompletionKey(key)}, nil
	}
	c := api.Completion{
		Key:    api.CompletionKey(key),
		Handle: api.ResultHandle(unsafe.Pointer(ov)),
		Bytes:  bytes,
	}
	if err != nil {
		c.Err = api.NativeError("overlapped I/O", err)
	}
	return c, nil
}

// Post queues a packet without an OVERLAPPED.
func (p *IOCPPort) Post(key api.CompletionKey) error {
	if err := windows.PostQueuedCompletionStatus(p.iocp, 0, uintptr(key), nil); err != nil {
		return api.NativeError("PostQueuedCompletionStatus", err)
	}
	return nil
}

// Close closes the port handle, releasing blocked Get calls.
func (p *IOCPPort) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return windows.CloseHandle(p.iocp)
}

// AllocContext returns a zeroed OVERLAPPED kept reachable until freed.
func (p *IOCPPort) AllocContext() (api.ResultHandle, error) {
	ov := new(windows.Overlapped)
	h := api.ResultHandle(unsafe.Pointer(ov))
	p.mu.Lock()
	p.overlapped[h] = ov
	p.mu.Unlock()
	return h, nil
}

// FreeContext drops the port's reference to the OVERLAPPED.
func (p *IOCPPort) FreeContext(h api.ResultHandle) {
	p.mu.Lock()
	delete(p.overlapped, h)
	p.mu.Unlock()
}

// Overlapped returns the OVERLAPPED named by h, for passing to native calls.
func (p *IOCPPort) Overlapped(h api.ResultHandle) *windows.Overlapped {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlapped[h]
}

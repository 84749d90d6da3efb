//go:build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>

package affinity

import (
	"math/bits"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-aio/api"
)

var (
	kernel32                   = windows.NewLazySystemDLL("kernel32.dll")
	procGetProcessAffinityMask = kernel32.NewProc("GetProcessAffinityMask")
	procSetThreadAffinityMask  = kernel32.NewProc("SetThreadAffinityMask")
)

func pin(n int) error {
	var process, system uintptr
	r, _, err := procGetProcessAffinityMask.Call(uintptr(windows.CurrentProcess()),
		uintptr(unsafe.Pointer(&process)), uintptr(unsafe.Pointer(&system)))
	if r == 0 {
		return api.NativeError("GetProcessAffinityMask", err)
	}
	count := bits.OnesCount64(uint64(process))
	if count == 0 {
		return api.NewError(api.ErrCodeNotSupported, "empty affinity mask")
	}
	n %= count
	for cpu := 0; cpu < 64; cpu++ {
		bit := uintptr(1) << cpu
		if process&bit == 0 {
			continue
		}
		if n > 0 {
			n--
			continue
		}
		if r, _, err := procSetThreadAffinityMask.Call(uintptr(windows.CurrentThread()), bit); r == 0 {
			return api.NativeError("SetThreadAffinityMask", err)
		}
		return nil
	}
	return api.NewError(api.ErrCodeNotSupported, "cpu out of mask range")
}

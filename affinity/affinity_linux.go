//go:build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>

package affinity

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-aio/api"
)

func pin(n int) error {
	var allowed unix.CPUSet
	if err := unix.SchedGetaffinity(0, &allowed); err != nil {
		return api.NativeError("sched_getaffinity", err)
	}
	count := allowed.Count()
	if count == 0 {
		return api.NewError(api.ErrCodeNotSupported, "empty affinity mask")
	}
	n %= count
	for cpu := 0; ; cpu++ {
		if !allowed.IsSet(cpu) {
			continue
		}
		if n > 0 {
			n--
			continue
		}
		var set unix.CPUSet
		set.Set(cpu)
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			return api.NativeError("sched_setaffinity", err)
		}
		return nil
	}
}

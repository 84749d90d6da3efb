//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux native poller: poll(2) over the batch descriptors, eventfd(2) as the
// per-batch wakeup token.

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-aio/api"
)

// pollPoller implements api.NativePoller with poll(2).
type pollPoller struct{}

// NewNativePoller returns the platform readiness primitive.
func NewNativePoller() (api.NativePoller, error) {
	return pollPoller{}, nil
}

func (pollPoller) Poll(fds []int, events []api.NativeEvents, timeoutMs int) (int, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: toPollEvents(events[i])}
	}
	n, err := unix.Poll(pfds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			// interrupted by signal, report nothing ready
			clear(events)
			return 0, nil
		}
		return 0, err
	}
	for i := range pfds {
		events[i] = fromPollEvents(pfds[i].Revents)
	}
	return n, nil
}

func toPollEvents(ev api.NativeEvents) int16 {
	var out int16
	if ev&api.EventReadable != 0 {
		out |= unix.POLLIN | unix.POLLPRI
	}
	if ev&(api.EventWritable|api.EventConnected) != 0 {
		out |= unix.POLLOUT
	}
	return out
}

func fromPollEvents(rev int16) api.NativeEvents {
	var ev api.NativeEvents
	if rev&(unix.POLLIN|unix.POLLPRI) != 0 {
		ev |= api.EventReadable
	}
	if rev&unix.POLLOUT != 0 {
		ev |= api.EventWritable
	}
	if rev&(unix.POLLERR|unix.POLLNVAL) != 0 {
		ev |= api.EventError
	}
	if rev&unix.POLLHUP != 0 {
		ev |= api.EventHangup
	}
	return ev
}

func (pollPoller) NewToken() (api.WakeupToken, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &eventfdToken{fd: fd}, nil
}

// eventfdToken is a counter that is readable while non-zero.
type eventfdToken struct {
	fd int
}

func (t *eventfdToken) FD() int { return t.fd }

func (t *eventfdToken) Signal() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(t.fd, buf[:]); err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func (t *eventfdToken) Reset() error {
	var buf [8]byte
	if _, err := unix.Read(t.fd, buf[:]); err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func (t *eventfdToken) Close() error {
	return unix.Close(t.fd)
}

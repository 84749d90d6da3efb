// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Selector configuration and the translation from native event bits to
// interest operations.

package reactor

import (
	"time"

	"github.com/joeycumines/logiface"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/control"
)

// DefaultBatchCapacity is the slot count of one native wait call.
const DefaultBatchCapacity = 1024

// Config configures a Selector.
type Config struct {
	// Native is the wait primitive. Nil selects the platform poller.
	Native api.NativePoller
	// BatchCapacity is the number of slots per native call, the wakeup
	// token included. Values below 2 use DefaultBatchCapacity.
	BatchCapacity int
	Logger        *logiface.Logger[logiface.Event]
	Metrics       *control.MetricsRegistry
}

// Native bit groups, scanned in this order each round.
const (
	readableSet = api.EventReadable | api.EventHangup | api.EventError
	writableSet = api.EventWritable
	exceptSet   = api.EventConnected | api.EventError
)

var nativeSets = [...]api.NativeEvents{readableSet, writableSet, exceptSet}

// requestedEvents maps interest ops to the native bits polled for them.
func requestedEvents(ops api.Ops) api.NativeEvents {
	var ev api.NativeEvents
	if ops&(api.OpRead|api.OpAccept) != 0 {
		ev |= api.EventReadable
	}
	if ops&(api.OpWrite|api.OpConnect) != 0 {
		ev |= api.EventWritable
	}
	if ops&api.OpConnect != 0 {
		ev |= api.EventConnected
	}
	return ev
}

// translate converts reported bits to ready ops for a channel polled for
// ops. CONNECT is only reported while the channel is still connecting.
func translate(bits api.NativeEvents, ops api.Ops, connecting bool) api.Ops {
	if bits&(api.EventError|api.EventHangup) != 0 {
		return ops
	}
	var ready api.Ops
	if bits&api.EventReadable != 0 {
		ready |= ops & (api.OpRead | api.OpAccept)
	}
	if bits&api.EventWritable != 0 {
		ready |= ops & api.OpWrite
		if connecting {
			ready |= ops & api.OpConnect
		}
	}
	if bits&api.EventConnected != 0 && connecting {
		ready |= ops & api.OpConnect
	}
	return ready
}

// timeoutMillis converts a Select timeout to the native convention:
// negative blocks, zero polls, positive rounds up to whole milliseconds.
func timeoutMillis(d time.Duration) int {
	switch {
	case d < 0:
		return -1
	case d == 0:
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	return int(ms)
}

// Package api
// Author: momentics <momentics@gmail.com>
//
// Operation sets, native event bits and opaque tokens shared by both back ends.

package api

import "strings"

// Ops is a set of interest or ready operations.
type Ops uint32

const (
	OpRead    Ops = 1 << 0
	OpWrite   Ops = 1 << 2
	OpConnect Ops = 1 << 3
	OpAccept  Ops = 1 << 4

	// OpAll is every operation a channel may request.
	OpAll = OpRead | OpWrite | OpConnect | OpAccept
)

// String renders the set as "READ|WRITE" style text.
func (o Ops) String() string {
	if o == 0 {
		return "NONE"
	}
	var parts []string
	for _, p := range []struct {
		op   Ops
		name string
	}{
		{OpRead, "READ"},
		{OpWrite, "WRITE"},
		{OpConnect, "CONNECT"},
		{OpAccept, "ACCEPT"},
	} {
		if o&p.op != 0 {
			parts = append(parts, p.name)
		}
	}
	if o&^OpAll != 0 {
		parts = append(parts, "?")
	}
	return strings.Join(parts, "|")
}

// NativeEvents are the raw bits a native wait call reports for one slot.
// On input to NativePoller.Poll they carry the requested bits.
type NativeEvents uint32

const (
	EventReadable NativeEvents = 1 << iota
	EventWritable
	// EventConnected reports completion of a non-blocking connect on
	// platforms that signal it separately from writability.
	EventConnected
	EventError
	EventHangup
)

// CompletionKey identifies a channel associated with a completion port.
// Zero is reserved for notifications that carry no I/O context.
type CompletionKey uint32

// ResultHandle names a native per-operation result context. Zero means none.
type ResultHandle uintptr

// Completion is one notification dequeued from a completion port.
type Completion struct {
	Key    CompletionKey
	Handle ResultHandle
	Bytes  uint32
	// Err is nil on success, otherwise a NativeFailure carrying the errno.
	Err error
}

// IsWakeup reports whether c carries no I/O context.
func (c Completion) IsWakeup() bool {
	return c.Key == 0 && c.Handle == 0
}

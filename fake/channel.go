// Package fake
// Author: momentics <momentics@gmail.com>
//
// Channel is a descriptor-backed channel usable with both engines.

package fake

import (
	"sync/atomic"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/completion"
)

// Channel is a fake socket.
type Channel struct {
	fd         int
	valid      api.Ops
	connecting atomic.Bool
	ops        *completion.OperationCache
}

var (
	_ api.Selectable     = (*Channel)(nil)
	_ api.OpsValidator   = (*Channel)(nil)
	_ api.Connectable    = (*Channel)(nil)
	_ completion.Channel = (*Channel)(nil)
)

// NewChannel returns a channel on fd that accepts registrations for valid.
// A zero valid accepts every operation.
func NewChannel(fd int, valid api.Ops) *Channel {
	if valid == 0 {
		valid = api.OpAll
	}
	return &Channel{fd: fd, valid: valid, ops: completion.NewOperationCache()}
}

// Channels returns n channels on descriptors base, base+1, ...
func Channels(base, n int, valid api.Ops) []*Channel {
	out := make([]*Channel, n)
	for i := range out {
		out[i] = NewChannel(base+i, valid)
	}
	return out
}

func (c *Channel) FD() int                 { return c.fd }
func (c *Channel) ValidOps() api.Ops       { return c.valid }
func (c *Channel) ConnectionPending() bool { return c.connecting.Load() }

// SetConnecting marks a non-blocking connect as in progress or finished.
func (c *Channel) SetConnecting(v bool) { c.connecting.Store(v) }

// Operations implements completion.Channel.
func (c *Channel) Operations() *completion.OperationCache { return c.ops }

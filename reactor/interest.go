// File: reactor/interest.go
// Author: momentics <momentics@gmail.com>
//
// Interest is the registration of one channel with one Selector.

package reactor

import (
	"sync/atomic"

	"github.com/momentics/hioload-aio/api"
)

type attachment struct{ v any }

// Interest records the operations a channel is registered for and the
// operations found ready by the last round that reported it.
type Interest struct {
	sel *Selector
	ch  api.Selectable
	fd  int

	interest atomic.Uint32
	ready    atomic.Uint32
	att      atomic.Pointer[attachment]
	valid    atomic.Bool

	// guarded by sel.regMu
	queued bool

	// owned by the selecting goroutine
	index   int
	polled  api.Ops
	seen    uint64
	counted uint64
}

func newInterest(sel *Selector, ch api.Selectable, ops api.Ops, att any) *Interest {
	k := &Interest{sel: sel, ch: ch, fd: ch.FD(), index: -1}
	k.interest.Store(uint32(ops))
	k.att.Store(&attachment{att})
	k.valid.Store(true)
	return k
}

// Channel returns the registered channel.
func (k *Interest) Channel() api.Selectable { return k.ch }

// Selector returns the owning selector.
func (k *Interest) Selector() *Selector { return k.sel }

// InterestOps returns the most recently requested operations. A change made
// by SetInterestOps takes effect at the start of the next round.
func (k *Interest) InterestOps() api.Ops { return api.Ops(k.interest.Load()) }

// ReadyOps returns the operations found ready.
func (k *Interest) ReadyOps() api.Ops { return api.Ops(k.ready.Load()) }

// Attachment returns the attached object.
func (k *Interest) Attachment() any { return k.att.Load().v }

// Attach replaces the attached object and returns the previous one.
func (k *Interest) Attach(v any) any { return k.att.Swap(&attachment{v}).v }

// IsValid reports whether the interest has not been cancelled.
func (k *Interest) IsValid() bool { return k.valid.Load() }

// IsReadable reports whether READ is ready.
func (k *Interest) IsReadable() bool { return k.ReadyOps()&api.OpRead != 0 }

// IsWritable reports whether WRITE is ready.
func (k *Interest) IsWritable() bool { return k.ReadyOps()&api.OpWrite != 0 }

// IsAcceptable reports whether ACCEPT is ready.
func (k *Interest) IsAcceptable() bool { return k.ReadyOps()&api.OpAccept != 0 }

// IsConnectable reports whether CONNECT is ready.
func (k *Interest) IsConnectable() bool { return k.ReadyOps()&api.OpConnect != 0 }

// SetInterestOps is shorthand for Selector.SetInterestOps.
func (k *Interest) SetInterestOps(ops api.Ops) error { return k.sel.SetInterestOps(k, ops) }

// Cancel is shorthand for Selector.Cancel.
func (k *Interest) Cancel() { k.sel.Cancel(k) }

func (k *Interest) connecting() bool {
	c, ok := k.ch.(api.Connectable)
	return ok && c.ConnectionPending()
}

// merge folds the ready ops translated from one native set into the interest.
// It reports whether the interest counts toward this round's result.
func (k *Interest) merge(round uint64, ops api.Ops, selected bool) (add, count bool) {
	old := api.Ops(k.ready.Load())
	var next api.Ops
	if selected || k.seen == round {
		next = old | ops
	} else {
		next = ops
	}
	k.seen = round
	k.ready.Store(uint32(next))

	if selected {
		if next != old && k.counted != round {
			k.counted = round
			return false, true
		}
		return false, false
	}
	if next&k.polled != 0 {
		k.counted = round
		return true, true
	}
	return false, false
}

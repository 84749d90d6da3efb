// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pending

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-aio/api"
)

// Gate guards one I/O direction of a channel (read or write): at most one
// operation may be outstanding, and a timed-out or cancelled operation kills
// the direction for good.
type Gate struct {
	mu      sync.Mutex
	current *Operation
	closed  bool
	// killed is set from an operation's own lock, so it stays outside mu.
	killed atomic.Bool
}

// Begin admits op as the direction's outstanding operation.
func (g *Gate) Begin(op *Operation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.closed:
		return api.ErrClosed
	case g.killed.Load():
		return api.NewError(api.ErrCodeTimeout, "direction killed by timeout or cancellation")
	case g.current != nil && !g.current.IsDone():
		return api.ErrAlreadyInProgress
	}
	g.current = op
	op.mu.Lock()
	op.gate = g
	op.mu.Unlock()
	return nil
}

// Current returns the last admitted operation.
func (g *Gate) Current() *Operation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Kill forbids any further operation in this direction.
func (g *Gate) Kill() {
	g.killed.Store(true)
}

// Killed reports whether Kill was called.
func (g *Gate) Killed() bool {
	return g.killed.Load()
}

// Close rejects new operations with ErrClosed.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

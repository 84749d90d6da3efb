// File: completion/cache.go
// Author: momentics <momentics@gmail.com>
//
// OperationCache is a channel's table of outstanding operations keyed by
// result handle.

package completion

import (
	"sync"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/pending"
)

// Channel is a channel that can be associated with a Dispatcher.
type Channel interface {
	Operations() *OperationCache
}

// Direction selects the gate an operation is admitted through.
type Direction int

const (
	// DirNone operations bypass the gates; any number may be in flight.
	DirNone Direction = iota
	DirRead
	DirWrite
)

// OperationCache tracks the operations a channel has in flight.
type OperationCache struct {
	mu       sync.Mutex
	ops      map[api.ResultHandle]*pending.Operation
	contexts *contextTable
	closed   bool
	// owner is the dispatcher the channel is associated with; written under
	// that dispatcher's keysMu.
	owner *Dispatcher
	gates [2]pending.Gate
}

// NewOperationCache returns an empty cache.
func NewOperationCache() *OperationCache {
	return &OperationCache{ops: make(map[api.ResultHandle]*pending.Operation)}
}

// Gate returns the gate of a read or write direction, nil for DirNone.
func (c *OperationCache) Gate(dir Direction) *pending.Gate {
	switch dir {
	case DirRead:
		return &c.gates[0]
	case DirWrite:
		return &c.gates[1]
	}
	return nil
}

func (c *OperationCache) bind(d *Dispatcher) {
	c.mu.Lock()
	c.owner = d
	c.mu.Unlock()
}

func (c *OperationCache) ownedBy(d *Dispatcher) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner == d && !c.closed
}

func (c *OperationCache) add(h api.ResultHandle, op *pending.Operation, contexts *contextTable) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return api.ErrClosed
	}
	if c.contexts == nil {
		c.contexts = contexts
	}
	c.ops[h] = op
	return nil
}

func (c *OperationCache) remove(h api.ResultHandle) *pending.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.ops[h]
	if !ok {
		return nil
	}
	delete(c.ops, h)
	return op
}

// Len returns the number of outstanding operations.
func (c *OperationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ops)
}

// Close fails every outstanding operation with api.ErrAsynchronousClose and
// closes both direction gates.
// Their result contexts become stale: the native side may still write into
// them, so they are only freed once their completion arrives. Close is
// idempotent and returns the number of operations it failed.
func (c *OperationCache) Close() int {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	c.closed = true
	ops := c.ops
	c.ops = make(map[api.ResultHandle]*pending.Operation)
	if c.contexts != nil {
		// marked under c.mu so a worker that misses the op finds it stale
		for h := range ops {
			c.contexts.markStale(h)
		}
	}
	c.mu.Unlock()
	c.gates[0].Close()
	c.gates[1].Close()

	for _, op := range ops {
		op.Fail(api.AsynchronousClose(nil))
	}
	return len(ops)
}

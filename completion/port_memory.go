// File: completion/port_memory.go
// Author: momentics <momentics@gmail.com>
//
// MemoryPort is a completion queue in process memory. It is the default port
// where no native completion port exists, and the base of test devices that
// deliver completions by hand.

package completion

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-aio/api"
)

// MemoryPort implements api.Port over a FIFO queue.
type MemoryPort struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue // of api.Completion
	bound  map[uintptr]api.CompletionKey
	closed bool
}

var _ api.Port = (*MemoryPort)(nil)

// NewMemoryPort returns an open, empty port.
func NewMemoryPort() *MemoryPort {
	p := &MemoryPort{q: queue.New(), bound: make(map[uintptr]api.CompletionKey)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Bind records the handle under key.
func (p *MemoryPort) Bind(handle uintptr, key api.CompletionKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrClosed
	}
	p.bound[handle] = key
	return nil
}

// KeyOf returns the key a handle was bound under.
func (p *MemoryPort) KeyOf(handle uintptr) (api.CompletionKey, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.bound[handle]
	return k, ok
}

// Get blocks until a completion is queued or the port closes.
func (p *MemoryPort) Get() (api.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.q.Length() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return api.Completion{}, api.ErrClosed
	}
	return p.q.Remove().(api.Completion), nil
}

// Post queues a notification without a result handle.
func (p *MemoryPort) Post(key api.CompletionKey) error {
	return p.Deliver(api.Completion{Key: key})
}

// Deliver queues c.
func (p *MemoryPort) Deliver(c api.Completion) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return api.ErrClosed
	}
	p.q.Add(c)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// Len returns the number of queued completions.
func (p *MemoryPort) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}

// Close wakes every waiter with api.ErrClosed. Queued completions are dropped.
func (p *MemoryPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	return nil
}

// IsClosed reports whether Close was called.
func (p *MemoryPort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

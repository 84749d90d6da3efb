// Package fake
// Author: momentics <momentics@gmail.com>
//
// Port is an in-memory completion port that also allocates result contexts,
// so tests can see every handle issued and every handle freed.

package fake

import (
	"sync"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/completion"
)

// Port records allocations and native calls.
type Port struct {
	*completion.MemoryPort

	mu     sync.Mutex
	next   api.ResultHandle
	live   map[api.ResultHandle]struct{}
	freed  int
	issued []api.ResultHandle
}

var (
	_ api.Port             = (*Port)(nil)
	_ api.ContextAllocator = (*Port)(nil)
)

// NewPort returns an open port.
func NewPort() *Port {
	return &Port{
		MemoryPort: completion.NewMemoryPort(),
		live:       make(map[api.ResultHandle]struct{}),
	}
}

func (p *Port) AllocContext() (api.ResultHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.live[p.next] = struct{}{}
	return p.next, nil
}

// FreeContext panics on a double free.
func (p *Port) FreeContext(h api.ResultHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live[h]; !ok {
		panic("fake: result context freed twice or never allocated")
	}
	delete(p.live, h)
	p.freed++
}

// Allocated returns the number of contexts not yet freed.
func (p *Port) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Freed returns the number of contexts freed.
func (p *Port) Freed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freed
}

// Call returns a native call that records its handle and reports status.
func (p *Port) Call(status completion.Status, n int, err error) completion.NativeCall {
	return func(h api.ResultHandle) (completion.Status, int, error) {
		p.mu.Lock()
		p.issued = append(p.issued, h)
		p.mu.Unlock()
		return status, n, err
	}
}

// Issued returns the handles passed to calls made through Call.
func (p *Port) Issued() []api.ResultHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]api.ResultHandle(nil), p.issued...)
}

// Complete queues a successful completion for handle h of key.
func (p *Port) Complete(key api.CompletionKey, h api.ResultHandle, n uint32) error {
	return p.Deliver(api.Completion{Key: key, Handle: h, Bytes: n})
}

// Fail queues a failed completion for handle h of key.
func (p *Port) Fail(key api.CompletionKey, h api.ResultHandle, err error) error {
	return p.Deliver(api.Completion{Key: key, Handle: h, Err: api.NativeError("overlapped I/O", err)})
}

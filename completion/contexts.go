// File: completion/contexts.go
// Author: momentics <momentics@gmail.com>
//
// Result-context bookkeeping: every handle is live or stale, and is released
// back to the allocator exactly once.

package completion

import (
	"sync"

	"github.com/momentics/hioload-aio/api"
)

// sequentialAllocator hands out non-zero integers for ports whose handles
// carry no native memory.
type sequentialAllocator struct {
	mu   sync.Mutex
	next api.ResultHandle
}

func (a *sequentialAllocator) AllocContext() (api.ResultHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return a.next, nil
}

func (a *sequentialAllocator) FreeContext(api.ResultHandle) {}

type contextTable struct {
	mu    sync.Mutex
	alloc api.ContextAllocator
	live  map[api.ResultHandle]struct{}
	stale map[api.ResultHandle]struct{}
}

func newContextTable(alloc api.ContextAllocator) *contextTable {
	if alloc == nil {
		alloc = &sequentialAllocator{}
	}
	return &contextTable{
		alloc: alloc,
		live:  make(map[api.ResultHandle]struct{}),
		stale: make(map[api.ResultHandle]struct{}),
	}
}

func (t *contextTable) acquire() (api.ResultHandle, error) {
	h, err := t.alloc.AllocContext()
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	t.live[h] = struct{}{}
	t.mu.Unlock()
	return h, nil
}

// release frees h whether live or stale. It reports whether h was stale and
// does nothing for an unknown handle.
func (t *contextTable) release(h api.ResultHandle) (known, wasStale bool) {
	t.mu.Lock()
	if _, ok := t.live[h]; ok {
		delete(t.live, h)
		known = true
	} else if _, ok := t.stale[h]; ok {
		delete(t.stale, h)
		known, wasStale = true, true
	}
	t.mu.Unlock()
	if known {
		t.alloc.FreeContext(h)
	}
	return known, wasStale
}

func (t *contextTable) markStale(h api.ResultHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.live[h]; ok {
		delete(t.live, h)
		t.stale[h] = struct{}{}
	}
}

// releaseIfStale frees h only if it is stale.
func (t *contextTable) releaseIfStale(h api.ResultHandle) bool {
	t.mu.Lock()
	_, ok := t.stale[h]
	delete(t.stale, h)
	t.mu.Unlock()
	if ok {
		t.alloc.FreeContext(h)
	}
	return ok
}

// releaseAllStale frees every stale context and returns how many.
func (t *contextTable) releaseAllStale() int {
	t.mu.Lock()
	stale := t.stale
	t.stale = make(map[api.ResultHandle]struct{})
	t.mu.Unlock()
	for h := range stale {
		t.alloc.FreeContext(h)
	}
	return len(stale)
}

func (t *contextTable) counts() (live, stale int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live), len(t.stale)
}

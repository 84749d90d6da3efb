// File: reactor/batch.go
// Author: momentics <momentics@gmail.com>
//
// batchedPoller splits the live descriptors into batches of at most
// capacity-1 entries, slot 0 of every batch holding that batch's wakeup
// token. Batch 0 is polled by the selecting goroutine, every other batch by a
// dedicated helper goroutine parked on a start barrier between rounds.

package reactor

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/control"
)

type batch struct {
	token  api.WakeupToken
	fds    []int
	events []api.NativeEvents
	keys   []*Interest
	err    error
}

// fill loads keys into the batch and arms the requested bits.
func (b *batch) fill(keys []*Interest) {
	n := len(keys) + 1
	if cap(b.fds) < n {
		b.fds = make([]int, n)
		b.events = make([]api.NativeEvents, n)
	}
	b.fds, b.events = b.fds[:n], b.events[:n]
	b.keys = append(b.keys[:0], keys...)
	b.fds[0] = b.token.FD()
	b.events[0] = api.EventReadable
	for i, k := range keys {
		b.fds[i+1] = k.fd
		b.events[i+1] = requestedEvents(k.polled)
	}
	b.err = nil
}

type helper struct {
	b      *batch
	zombie bool
}

type batchedPoller struct {
	native   api.NativePoller
	capacity int
	log      *logiface.Logger[logiface.Event]
	metrics  *control.MetricsRegistry

	// start barrier
	mu      sync.Mutex
	cond    *sync.Cond
	gen     uint64
	timeout int
	helpers []*helper

	finish    sync.WaitGroup
	firstDone atomic.Bool
	multi     bool

	// tokMu guards batches against ring, reset and resize.
	tokMu   sync.Mutex
	batches []*batch
	armed   bool
	closed  bool

	spawned atomic.Int64
	alive   atomic.Int64
}

func newBatchedPoller(native api.NativePoller, capacity int, log *logiface.Logger[logiface.Event], metrics *control.MetricsRegistry) (*batchedPoller, error) {
	p := &batchedPoller{native: native, capacity: capacity, log: log, metrics: metrics}
	p.cond = sync.NewCond(&p.mu)
	// batch 0 always exists
	if err := p.resize(1); err != nil {
		return nil, err
	}
	return p, nil
}

// batchesFor returns the number of batches needed for n descriptors.
func (p *batchedPoller) batchesFor(n int) int {
	per := p.capacity - 1
	if n <= per {
		return 1
	}
	return (n + per - 1) / per
}

// resize grows or shrinks the batch set to want, spawning or retiring helpers
// so exactly want-1 exist. Called only between rounds.
func (p *batchedPoller) resize(want int) error {
	p.tokMu.Lock()
	defer p.tokMu.Unlock()
	if p.closed {
		return api.ErrClosed
	}
	for len(p.batches) < want {
		tok, err := p.native.NewToken()
		if err != nil {
			return api.NativeError("create wakeup token", err)
		}
		if p.armed {
			_ = tok.Signal()
		}
		b := &batch{token: tok}
		p.batches = append(p.batches, b)
		if len(p.batches) > 1 {
			p.spawn(b)
		}
	}
	if len(p.batches) > want {
		p.mu.Lock()
		for _, h := range p.helpers[want-1:] {
			h.zombie = true
		}
		p.helpers = p.helpers[:want-1]
		p.mu.Unlock()
		p.cond.Broadcast()
		for _, b := range p.batches[want:] {
			_ = b.token.Close()
		}
		p.batches = p.batches[:want]
	}
	return nil
}

func (p *batchedPoller) spawn(b *batch) {
	h := &helper{b: b}
	p.mu.Lock()
	p.helpers = append(p.helpers, h)
	start := p.gen
	p.mu.Unlock()
	p.spawned.Add(1)
	p.alive.Add(1)
	p.metrics.Add(control.MetricReactorHelpersSpawned, 1)
	p.log.Debug().Int("helpers", len(p.batches)-1).Log("reactor: helper spawned")
	go p.helperLoop(h, start)
}

func (p *batchedPoller) helperLoop(h *helper, seen uint64) {
	defer p.alive.Add(-1)
	for {
		p.mu.Lock()
		for p.gen == seen && !h.zombie {
			p.cond.Wait()
		}
		if h.zombie {
			p.mu.Unlock()
			return
		}
		seen = p.gen
		timeout := p.timeout
		p.mu.Unlock()

		p.run(h.b, timeout)
		p.finish.Done()
	}
}

// poll runs one round over live and leaves the reported bits in the batches.
// The returned error joins the failures of every batch that failed.
func (p *batchedPoller) poll(live []*Interest, timeoutMs int) error {
	want := p.batchesFor(len(live))
	if err := p.resize(want); err != nil {
		return err
	}
	per := p.capacity - 1
	for i, b := range p.batches {
		lo := i * per
		hi := min(lo+per, len(live))
		b.fill(live[lo:hi])
	}

	p.multi = want > 1
	p.firstDone.Store(false)
	if p.multi {
		p.finish.Add(want - 1)
		p.mu.Lock()
		p.timeout = timeoutMs
		p.gen++
		p.mu.Unlock()
		p.cond.Broadcast()
	}
	p.run(p.batches[0], timeoutMs)
	p.finish.Wait()

	var errs []error
	for _, b := range p.batches {
		if b.err != nil {
			errs = append(errs, b.err)
		}
	}
	return errors.Join(errs...)
}

func (p *batchedPoller) run(b *batch, timeoutMs int) {
	if _, err := p.native.Poll(b.fds, b.events, timeoutMs); err != nil {
		b.err = api.NativeError("poll", err)
	}
	if p.multi && p.firstDone.CompareAndSwap(false, true) {
		p.interruptOthers(b)
	}
}

// interruptOthers makes every batch but self return from its wait.
func (p *batchedPoller) interruptOthers(self *batch) {
	p.tokMu.Lock()
	defer p.tokMu.Unlock()
	for _, b := range p.batches {
		if b != self {
			_ = b.token.Signal()
		}
	}
}

// each calls fn for every descriptor slot of the successful batches whose
// reported bits intersect mask.
func (p *batchedPoller) each(mask api.NativeEvents, fn func(k *Interest, bits api.NativeEvents)) {
	for _, b := range p.batches {
		if b.err != nil {
			continue
		}
		for i, k := range b.keys {
			if bits := b.events[i+1] & mask; bits != 0 {
				fn(k, bits)
			}
		}
	}
}

// ring signals every token. Called with the selector's wakeup lock held.
func (p *batchedPoller) ring() {
	p.tokMu.Lock()
	defer p.tokMu.Unlock()
	p.armed = true
	for _, b := range p.batches {
		if err := b.token.Signal(); err != nil {
			p.log.Warning().Err(err).Log("reactor: wakeup token signal failed")
		}
	}
}

// reset drains every token.
func (p *batchedPoller) reset() {
	p.tokMu.Lock()
	defer p.tokMu.Unlock()
	p.armed = false
	for _, b := range p.batches {
		_ = b.token.Reset()
	}
}

func (p *batchedPoller) helpersAlive() int { return int(p.alive.Load()) }

// close retires every helper and closes every token. Called between rounds.
func (p *batchedPoller) close() {
	p.tokMu.Lock()
	defer p.tokMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.mu.Lock()
	for _, h := range p.helpers {
		h.zombie = true
	}
	p.helpers = nil
	p.mu.Unlock()
	p.cond.Broadcast()
	for _, b := range p.batches {
		_ = b.token.Close()
	}
	p.batches = nil
}

// Package fake
// Author: momentics <momentics@gmail.com>
//
// Poller implements api.NativePoller over an in-memory readiness table.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-aio/api"
)

// Poller reports the bits set with SetReady. A Poll with nothing to report
// blocks until its timeout, a token signal or a readiness change.
type Poller struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ready   map[int]api.NativeEvents
	tokens  map[int]*Token
	nextTok int
	failFD  map[int]error
	waiting int
	calls   int
	created int
}

var _ api.NativePoller = (*Poller)(nil)

// NewPoller returns a poller with nothing ready.
func NewPoller() *Poller {
	p := &Poller{
		ready:  make(map[int]api.NativeEvents),
		tokens: make(map[int]*Token),
		failFD: make(map[int]error),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetReady makes fd report ev until cleared.
func (p *Poller) SetReady(fd int, ev api.NativeEvents) {
	p.mu.Lock()
	p.ready[fd] = ev
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Clear stops fd from reporting.
func (p *Poller) Clear(fd int) {
	p.mu.Lock()
	delete(p.ready, fd)
	p.mu.Unlock()
}

// FailWith makes every Poll that includes fd fail with err. A nil err
// removes the failure.
func (p *Poller) FailWith(fd int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failFD, fd)
		return
	}
	p.failFD[fd] = err
}

// Waiting returns the number of Poll calls currently blocked.
func (p *Poller) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting
}

// Calls returns the number of Poll calls made.
func (p *Poller) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// OpenTokens returns the number of tokens created and not yet closed.
func (p *Poller) OpenTokens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokens)
}

// TokensCreated returns the number of tokens ever created.
func (p *Poller) TokensCreated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Poll implements api.NativePoller.
func (p *Poller) Poll(fds []int, events []api.NativeEvents, timeoutMs int) (int, error) {
	requested := make([]api.NativeEvents, len(events))
	copy(requested, events)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	for _, fd := range fds {
		if err, ok := p.failFD[fd]; ok {
			return 0, err
		}
	}

	expired := timeoutMs == 0
	if timeoutMs > 0 {
		t := time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
			p.mu.Lock()
			expired = true
			p.mu.Unlock()
			p.cond.Broadcast()
		})
		defer t.Stop()
	}
	for {
		if n := p.scan(fds, requested, events); n > 0 || expired {
			return n, nil
		}
		p.waiting++
		p.cond.Wait()
		p.waiting--
	}
}

// scan must be called with p.mu held.
func (p *Poller) scan(fds []int, requested, events []api.NativeEvents) int {
	n := 0
	for i, fd := range fds {
		var bits api.NativeEvents
		if tok, ok := p.tokens[fd]; ok {
			if tok.signalled {
				bits = api.EventReadable
			}
		} else {
			bits = p.ready[fd] & (requested[i] | api.EventError | api.EventHangup)
		}
		events[i] = bits
		if bits != 0 {
			n++
		}
	}
	return n
}

// NewToken implements api.NativePoller. Token descriptors are negative so
// they never collide with channel descriptors.
func (p *Poller) NewToken() (api.WakeupToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextTok--
	p.created++
	t := &Token{p: p, fd: p.nextTok}
	p.tokens[t.fd] = t
	return t, nil
}

// Token is a wakeup token of a fake Poller.
type Token struct {
	p         *Poller
	fd        int
	signalled bool
	closed    bool
}

func (t *Token) FD() int { return t.fd }

func (t *Token) Signal() error {
	t.p.mu.Lock()
	if t.closed {
		t.p.mu.Unlock()
		return api.ErrClosed
	}
	t.signalled = true
	t.p.mu.Unlock()
	t.p.cond.Broadcast()
	return nil
}

func (t *Token) Reset() error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	t.signalled = false
	return nil
}

func (t *Token) Close() error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	if !t.closed {
		t.closed = true
		delete(t.p.tokens, t.fd)
	}
	return nil
}

// Signalled reports whether the token is signalled.
func (t *Token) Signalled() bool {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	return t.signalled
}

// Package interrupt
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Section is the begin/end bracket placed around every blocking call on a
// channel. Cancelling the caller's context plays the role of interrupting a
// blocked thread: it runs the section's interrupt action (asynchronous close
// by default). Close signals every parked waiter directly through the unblock
// hook it registered, and End turns "closed while waiting" into
// api.ErrAsynchronousClose.

package interrupt

import (
	"context"
	"sync"

	"github.com/momentics/hioload-aio/api"
)

// Waiter is the record of one caller parked inside a Section.
type Waiter struct {
	section     *Section
	unblock     func()
	done        chan struct{}
	stop        func() bool
	interrupted bool
	cause       error
}

// Done is closed when the section closes or the waiter is interrupted.
func (w *Waiter) Done() <-chan struct{} { return w.done }

// Section tracks the blocking callers of one channel.
type Section struct {
	mu          sync.Mutex
	closed      bool
	waiters     map[*Waiter]struct{}
	onClose     func() error
	onInterrupt func()
	closeErr    error
}

// NewSection returns a section whose Close runs onClose once. The interrupt
// action is Close itself.
func NewSection(onClose func() error) *Section {
	s := &Section{waiters: make(map[*Waiter]struct{}), onClose: onClose}
	s.onInterrupt = func() { _ = s.Close() }
	return s
}

// NewWakeupSection returns a section whose interrupt action is wakeup rather
// than close, as needed by a selector.
func NewWakeupSection(wakeup func()) *Section {
	return &Section{waiters: make(map[*Waiter]struct{}), onInterrupt: wakeup}
}

// Begin registers a blocking caller. If ctx is cancelled before End, the
// interrupt action runs and the waiter is signalled. unblock, if non-nil, is
// called when the section closes so a caller stuck in a native wait can be
// released. Begin fails with api.ErrClosed on a closed section.
func (s *Section) Begin(ctx context.Context, unblock func()) (*Waiter, error) {
	w := &Waiter{section: s, unblock: unblock, done: make(chan struct{})}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, api.ErrClosed
	}
	s.waiters[w] = struct{}{}
	s.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		w.stop = context.AfterFunc(ctx, func() {
			s.interrupt(w, ctx.Err())
		})
	}
	return w, nil
}

// End removes the waiter. If the section was closed, or the waiter
// interrupted, and the call did not complete, it returns
// api.ErrAsynchronousClose.
func (s *Section) End(w *Waiter, completed bool) error {
	if w == nil {
		return nil
	}
	if w.stop != nil {
		w.stop()
	}
	s.mu.Lock()
	delete(s.waiters, w)
	closed := s.closed
	interrupted, cause := w.interrupted, w.cause
	s.mu.Unlock()
	if completed {
		return nil
	}
	if interrupted {
		return api.AsynchronousClose(cause)
	}
	if closed {
		return api.AsynchronousClose(nil)
	}
	return nil
}

// Close marks the section closed, runs the close hook once and signals every
// parked waiter. Subsequent calls return the first result.
func (s *Section) Close() error {
	s.mu.Lock()
	if s.closed {
		err := s.closeErr
		s.mu.Unlock()
		return err
	}
	s.closed = true
	parked := make([]*Waiter, 0, len(s.waiters))
	for w := range s.waiters {
		parked = append(parked, w)
	}
	s.mu.Unlock()

	var err error
	if s.onClose != nil {
		err = s.onClose()
	}
	for _, w := range parked {
		s.signal(w)
	}

	s.mu.Lock()
	s.closeErr = err
	s.mu.Unlock()
	return err
}

// IsClosed reports whether Close was called.
func (s *Section) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Parked returns the number of callers currently inside the section.
func (s *Section) Parked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

func (s *Section) interrupt(w *Waiter, cause error) {
	s.mu.Lock()
	if _, ok := s.waiters[w]; !ok {
		s.mu.Unlock()
		return
	}
	w.interrupted = true
	w.cause = cause
	s.mu.Unlock()
	if s.onInterrupt != nil {
		s.onInterrupt()
	}
	s.signal(w)
}

// signal wakes w once.
func (s *Section) signal(w *Waiter) {
	s.mu.Lock()
	select {
	case <-w.done:
		s.mu.Unlock()
		return
	default:
	}
	close(w.done)
	unblock := w.unblock
	s.mu.Unlock()
	if unblock != nil {
		unblock()
	}
}

// Do runs a blocking call inside the section. fn receives the waiter's done
// channel and reports whether it completed.
func (s *Section) Do(ctx context.Context, unblock func(), fn func(stop <-chan struct{}) (bool, error)) error {
	w, err := s.Begin(ctx, unblock)
	if err != nil {
		return err
	}
	completed, ferr := fn(w.Done())
	if eerr := s.End(w, completed); eerr != nil {
		return eerr
	}
	return ferr
}

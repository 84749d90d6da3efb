// Package pending
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Operation is the single-assignment result cell shared by the readiness and
// completion engines. An initiator that completes "immediately" and a worker
// that completes the same operation may race; every writer checks the state
// under the operation's own mutex, so exactly one write takes effect.

package pending

import (
	"context"
	"sync"
	"time"

	"github.com/momentics/hioload-aio/api"
)

// State of an Operation.
type State int32

const (
	StatePending State = iota
	StateDone
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Invoker runs a completion callback. A nil Invoker runs it inline.
type Invoker func(fn func())

// Callback observes a resolved operation.
type Callback func(op *Operation)

// Operation is a pending I/O result.
type Operation struct {
	mu       sync.Mutex
	state    State
	n        int
	value    any
	err      error
	done     chan struct{}
	ctx      any
	onCancel func()
	timer    *time.Timer
	gate     *Gate
	handlers []Callback
}

// New returns a pending operation carrying the caller-defined context.
func New(ctx any) *Operation {
	return &Operation{ctx: ctx, done: make(chan struct{})}
}

// Context returns the value given to New.
func (op *Operation) Context() any { return op.ctx }

// SetCancelHook installs fn to run once, before the transition to CANCELLED.
// fn runs without the operation's lock held.
func (op *Operation) SetCancelHook(fn func()) {
	op.mu.Lock()
	op.onCancel = fn
	op.mu.Unlock()
}

// IsDone reports whether the operation left PENDING.
func (op *Operation) IsDone() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.isDone()
}

func (op *Operation) isDone() bool { return op.state != StatePending }

// State returns the current state.
func (op *Operation) State() State {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Done is closed once the operation is resolved.
func (op *Operation) Done() <-chan struct{} { return op.done }

// Complete resolves the operation with n transferred bytes.
func (op *Operation) Complete(n int) bool {
	return op.Resolve(nil, nil, n, nil)
}

// CompleteValue resolves the operation with a value and byte count.
func (op *Operation) CompleteValue(v any, n int) bool {
	return op.Resolve(nil, v, n, nil)
}

// Fail resolves the operation with err.
func (op *Operation) Fail(err error) bool {
	return op.Resolve(nil, nil, 0, err)
}

// Resolve performs the single assignment: it succeeds only for the first
// writer. Callbacks registered so far are handed to inv.
func (op *Operation) Resolve(inv Invoker, v any, n int, err error) bool {
	state := StateDone
	if err != nil {
		state = StateFailed
	}
	op.mu.Lock()
	if op.isDone() {
		op.mu.Unlock()
		return false
	}
	op.settle(state, v, n, err)
	handlers := op.takeHandlers()
	op.mu.Unlock()
	op.fire(inv, handlers)
	return true
}

// Cancel moves a pending operation to CANCELLED. The native call, if already
// submitted, keeps running; its eventual completion is discarded. Cancelling
// kills the operation's gate so no further operation starts on it.
func (op *Operation) Cancel() bool {
	op.mu.Lock()
	if op.isDone() {
		op.mu.Unlock()
		return false
	}
	hook := op.onCancel
	op.onCancel = nil
	op.mu.Unlock()
	if hook != nil {
		hook()
	}

	op.mu.Lock()
	if op.isDone() {
		// resolved while the hook ran
		op.mu.Unlock()
		return false
	}
	if op.gate != nil {
		op.gate.Kill()
	}
	op.settle(StateCancelled, nil, 0, api.NewError(api.ErrCodeCancelled, api.ErrCancelled.Error()))
	handlers := op.takeHandlers()
	op.mu.Unlock()
	op.fire(nil, handlers)
	return true
}

// SetTimeout arms the timeout companion. If it fires before the operation
// resolves, the owning gate is killed and the operation fails with ErrTimeout.
// It cannot abort an in-flight native call.
func (op *Operation) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.isDone() || op.timer != nil {
		return
	}
	op.timer = time.AfterFunc(d, op.expire)
}

func (op *Operation) expire() {
	op.mu.Lock()
	if op.isDone() {
		op.mu.Unlock()
		return
	}
	if op.gate != nil {
		op.gate.Kill()
	}
	op.settle(StateFailed, nil, 0, api.NewError(api.ErrCodeTimeout, api.ErrTimeout.Error()))
	handlers := op.takeHandlers()
	op.mu.Unlock()
	op.fire(nil, handlers)
}

// OnComplete registers fn. If the operation is already resolved fn runs now,
// on the calling goroutine.
func (op *Operation) OnComplete(fn Callback) {
	if fn == nil {
		return
	}
	op.mu.Lock()
	if !op.isDone() {
		op.handlers = append(op.handlers, fn)
		op.mu.Unlock()
		return
	}
	op.mu.Unlock()
	fn(op)
}

// Result returns the outcome without blocking. The error is
// api.ErrAlreadyInProgress while the operation is pending.
func (op *Operation) Result() (int, error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.isDone() {
		return 0, api.ErrAlreadyInProgress
	}
	return op.n, op.err
}

// Value returns the value given to CompleteValue, if any.
func (op *Operation) Value() any {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.value
}

// Wait blocks until the operation resolves or ctx is done. A done ctx leaves
// the operation pending and yields AsynchronousClose.
func (op *Operation) Wait(ctx context.Context) (int, error) {
	select {
	case <-op.done:
		return op.Result()
	case <-ctx.Done():
		return 0, api.AsynchronousClose(ctx.Err())
	}
}

// settle must be called with op.mu held and the operation pending.
func (op *Operation) settle(state State, v any, n int, err error) {
	op.state = state
	op.value = v
	op.n = n
	op.err = err
	if op.timer != nil {
		op.timer.Stop()
		op.timer = nil
	}
	close(op.done)
}

func (op *Operation) takeHandlers() []Callback {
	h := op.handlers
	op.handlers = nil
	return h
}

func (op *Operation) fire(inv Invoker, handlers []Callback) {
	if len(handlers) == 0 {
		return
	}
	run := func() {
		for _, h := range handlers {
			h(op)
		}
	}
	if inv == nil {
		run()
		return
	}
	inv(run)
}

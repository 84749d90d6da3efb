// File: completion/dispatcher.go
// Author: momentics <momentics@gmail.com>
//
// Dispatcher owns the completion port, the key table and the worker pool.
// Worker 0 is reserved: it never runs a callback inline, so at least one
// worker keeps draining the port while user callbacks block the others.

package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/joeycumines/logiface"

	"github.com/momentics/hioload-aio/affinity"
	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/control"
	"github.com/momentics/hioload-aio/pending"
)

// Status is the outcome of starting a native call.
type Status int

const (
	// StatusPending: the call is in flight and will complete through the port.
	StatusPending Status = iota
	// StatusCompleted: the call finished at once; its packet still arrives
	// on the port and races the initiator's resolution.
	StatusCompleted
	// StatusCompletedSkipPort: the call finished at once and no packet will
	// be queued for it.
	StatusCompletedSkipPort
	// StatusFailed: the call failed to start; no packet will arrive.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCompletedSkipPort:
		return "COMPLETED_SKIP_PORT"
	case StatusFailed:
		return "FAILED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// NativeCall starts an operation that reports through result context h. It
// returns the start status, the byte count of an immediate completion, and the
// OS error of a failed start.
type NativeCall func(h api.ResultHandle) (Status, int, error)

// Config configures a Dispatcher.
type Config struct {
	// Port is the completion queue. Nil selects NewPort().
	Port api.Port
	// Workers is the pool size, at least 2.
	Workers int
	// MaxInlineInvocations caps the callbacks a worker runs inline in a row
	// before it defers one.
	MaxInlineInvocations int
	// DeferredPoolSize caps goroutines running deferred callbacks.
	DeferredPoolSize int
	Logger           *logiface.Logger[logiface.Event]
	Metrics          *control.MetricsRegistry
	// PinWorkers binds worker i to the i-th allowed CPU.
	PinWorkers bool
	// Store, when set, feeds max_inline_invocations changes to the workers.
	Store *control.ConfigStore
}

// Dispatcher demultiplexes a completion port to pending operations.
type Dispatcher struct {
	port     api.Port
	contexts *contextTable
	invoker  *invoker
	log      *logiface.Logger[logiface.Event]
	metrics  *control.MetricsRegistry

	maxInline atomic.Int32
	pin       bool

	keysMu   sync.RWMutex
	keys     map[api.CompletionKey]Channel
	nextKey  api.CompletionKey
	freeKeys *queue.Queue // of api.CompletionKey
	shutdown bool
	released bool

	taskMu sync.Mutex
	tasks  *queue.Queue // of func()

	workers     int
	alive       atomic.Int32
	done        chan struct{}
	completions atomic.Int64
	staleFreed  atomic.Int64
}

var _ api.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher starts the worker pool on cfg.Port.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	port := cfg.Port
	if port == nil {
		var err error
		if port, err = NewPort(); err != nil {
			return nil, err
		}
	}
	workers := cfg.Workers
	if workers < 2 {
		workers = 2
	}
	alloc, _ := port.(api.ContextAllocator)
	d := &Dispatcher{
		port:     port,
		contexts: newContextTable(alloc),
		invoker:  newInvoker(cfg.DeferredPoolSize, cfg.Logger, cfg.Metrics),
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		keys:     make(map[api.CompletionKey]Channel),
		freeKeys: queue.New(),
		tasks:    queue.New(),
		workers:  workers,
		pin:      cfg.PinWorkers,
		done:     make(chan struct{}),
	}
	d.maxInline.Store(int32(cfg.MaxInlineInvocations))
	if cfg.Store != nil {
		cfg.Store.OnReload(func(c control.Config) {
			d.maxInline.Store(int32(c.MaxInlineInvocations))
		})
	}
	d.alive.Store(int32(workers))
	for i := 0; i < workers; i++ {
		go d.worker(i)
	}
	d.log.Info().Int("workers", workers).Log("completion: dispatcher started")
	return d, nil
}

// Associate binds a channel's native handle to the port and returns the key
// its completions will carry. A zero handle skips the native bind.
func (d *Dispatcher) Associate(ch Channel, handle uintptr) (api.CompletionKey, error) {
	if ch == nil {
		return 0, api.ErrInvalidArgument
	}
	d.keysMu.Lock()
	defer d.keysMu.Unlock()
	if d.shutdown {
		return 0, api.ErrClosed
	}
	key := d.allocKey()
	if handle != 0 {
		if err := d.port.Bind(handle, key); err != nil {
			d.freeKeys.Add(key)
			return 0, err
		}
	}
	d.keys[key] = ch
	ch.Operations().bind(d)
	return key, nil
}

// allocKey must be called with keysMu held.
func (d *Dispatcher) allocKey() api.CompletionKey {
	if d.freeKeys.Length() > 0 {
		return d.freeKeys.Remove().(api.CompletionKey)
	}
	d.nextKey++
	return d.nextKey
}

// Disassociate forgets key. Completions still carrying it are treated as
// stale. Once shutdown is requested, removing the last key releases the
// workers.
func (d *Dispatcher) Disassociate(key api.CompletionKey) {
	d.keysMu.Lock()
	defer d.keysMu.Unlock()
	ch, ok := d.keys[key]
	if !ok {
		return
	}
	ch.Operations().bind(nil)
	delete(d.keys, key)
	d.freeKeys.Add(key)
	if d.shutdown && len(d.keys) == 0 {
		d.releaseWorkers()
	}
}

func (d *Dispatcher) channel(key api.CompletionKey) Channel {
	d.keysMu.RLock()
	defer d.keysMu.RUnlock()
	return d.keys[key]
}

// SubmitTask queues fn for a worker and wakes one.
func (d *Dispatcher) SubmitTask(fn func()) error {
	if fn == nil {
		return api.ErrInvalidArgument
	}
	d.keysMu.RLock()
	shutdown := d.shutdown
	d.keysMu.RUnlock()
	if shutdown {
		return api.ErrClosed
	}
	d.taskMu.Lock()
	d.tasks.Add(fn)
	d.taskMu.Unlock()
	if err := d.port.Post(0); err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) takeTask() func() {
	d.taskMu.Lock()
	defer d.taskMu.Unlock()
	if d.tasks.Length() == 0 {
		return nil
	}
	return d.tasks.Remove().(func())
}

// Submit starts an ungated call on behalf of ch and returns its pending
// operation. ctx is the caller-defined context carried by the operation.
func (d *Dispatcher) Submit(ch Channel, ctx any, call NativeCall) *pending.Operation {
	return d.SubmitIO(ch, DirNone, ctx, 0, call)
}

// SubmitIO starts call through the dir gate of ch. A second operation in a
// direction that still has one outstanding fails with ErrAlreadyInProgress.
// A positive timeout arms the operation's timer once the call is pending;
// expiry fails it with ErrTimeout and kills the direction.
//
// ch must be associated with d. Submitting on an unassociated or closed
// channel, or after the workers were released, fails with ErrClosed and
// allocates nothing. A graceful Shutdown keeps serving associated channels.
func (d *Dispatcher) SubmitIO(ch Channel, dir Direction, ctx any, timeout time.Duration, call NativeCall) *pending.Operation {
	op := pending.New(ctx)
	if ch == nil || call == nil {
		op.Fail(api.ErrInvalidArgument)
		return op
	}
	cache := ch.Operations()
	if g := cache.Gate(dir); g != nil {
		if err := g.Begin(op); err != nil {
			op.Fail(err)
			return op
		}
	}

	d.keysMu.RLock()
	if d.released || !cache.ownedBy(d) {
		d.keysMu.RUnlock()
		op.Fail(api.ErrClosed)
		return op
	}
	h, err := d.contexts.acquire()
	if err != nil {
		d.keysMu.RUnlock()
		op.Fail(api.NativeError("allocate result context", err))
		return op
	}
	if err := cache.add(h, op, d.contexts); err != nil {
		d.keysMu.RUnlock()
		d.contexts.release(h)
		op.Fail(err)
		return op
	}
	d.keysMu.RUnlock()

	status, n, cerr := call(h)
	switch status {
	case StatusPending:
		op.SetTimeout(timeout)
	case StatusCompleted:
		// the worker frees the context when the packet arrives
		op.Resolve(d.invoker.deferred, nil, n, nil)
	case StatusCompletedSkipPort:
		cache.remove(h)
		d.contexts.release(h)
		op.Resolve(d.invoker.deferred, nil, n, nil)
	default:
		cache.remove(h)
		d.contexts.release(h)
		op.Resolve(d.invoker.deferred, nil, 0, api.NativeError("start operation", cerr))
	}
	return op
}

// inlineBudget counts consecutive callbacks a worker ran inline. Once limit is
// reached the next callback is deferred and the count starts over.
type inlineBudget struct {
	used int
}

func (b *inlineBudget) allow(limit int) bool {
	if b.used < limit {
		b.used++
		return true
	}
	b.used = 0
	return false
}

func (d *Dispatcher) worker(id int) {
	defer d.exit(id)
	reserved := id == 0
	var budget inlineBudget
	if d.pin {
		if err := affinity.Pin(id); err != nil {
			d.log.Warning().Err(err).Int("worker", id).Log("completion: worker not pinned")
		}
	}
	for {
		c, err := d.port.Get()
		if err != nil {
			if !errors.Is(err, api.ErrClosed) {
				d.log.Err().Err(err).Int("worker", id).Log("completion: port failed")
			}
			return
		}

		if c.IsWakeup() {
			task := d.takeTask()
			if task == nil {
				return
			}
			d.invoker.direct(task)
			continue
		}

		ch := d.channel(c.Key)
		if ch == nil {
			d.releaseStale(c)
			continue
		}
		op := ch.Operations().remove(c.Handle)
		if op == nil {
			if d.contexts.releaseIfStale(c.Handle) {
				d.countStale(c)
			}
			continue
		}
		d.contexts.release(c.Handle)
		d.completions.Add(1)
		d.metrics.Add(control.MetricCompletions, 1)

		inv := pending.Invoker(d.invoker.deferred)
		if !reserved && budget.allow(int(d.maxInline.Load())) {
			inv = d.invoker.direct
		}
		op.Resolve(inv, nil, int(c.Bytes), c.Err)
	}
}

// releaseStale frees the context of a completion whose key is no longer
// associated.
func (d *Dispatcher) releaseStale(c api.Completion) {
	if c.Handle == 0 {
		return
	}
	if known, _ := d.contexts.release(c.Handle); known {
		d.countStale(c)
	}
}

func (d *Dispatcher) countStale(c api.Completion) {
	d.staleFreed.Add(1)
	d.metrics.Add(control.MetricStaleFreed, 1)
	d.log.Debug().Uint64("key", uint64(c.Key)).Uint64("handle", uint64(c.Handle)).Log("completion: stale context freed")
}

// exit runs as each worker leaves; the last one tears the port down.
func (d *Dispatcher) exit(id int) {
	d.log.Debug().Int("worker", id).Log("completion: worker exit")
	if d.alive.Add(-1) != 0 {
		return
	}
	_ = d.port.Close()
	if n := d.contexts.releaseAllStale(); n > 0 {
		d.staleFreed.Add(int64(n))
		d.metrics.Add(control.MetricStaleFreed, int64(n))
	}
	d.log.Info().Int64("completions", d.completions.Load()).Log("completion: dispatcher terminated")
	close(d.done)
}

// releaseWorkers posts one wakeup per worker. Must be called with keysMu held.
func (d *Dispatcher) releaseWorkers() {
	if d.released {
		return
	}
	d.released = true
	for i := 0; i < d.workers; i++ {
		if err := d.port.Post(0); err != nil {
			d.log.Warning().Err(err).Log("completion: shutdown wakeup failed")
			return
		}
	}
}

// Shutdown stops accepting associations and tasks. The workers exit once
// every channel has been disassociated.
func (d *Dispatcher) Shutdown() {
	d.keysMu.Lock()
	defer d.keysMu.Unlock()
	d.shutdown = true
	if len(d.keys) == 0 {
		d.releaseWorkers()
	}
}

// ShutdownNow closes the operation cache of every associated channel,
// disassociates it and shuts down.
func (d *Dispatcher) ShutdownNow() {
	d.keysMu.Lock()
	d.shutdown = true
	chans := make(map[api.CompletionKey]Channel, len(d.keys))
	for k, ch := range d.keys {
		chans[k] = ch
	}
	d.keysMu.Unlock()

	for key, ch := range chans {
		ch.Operations().Close()
		d.Disassociate(key)
	}
	d.Shutdown()
}

// AwaitTermination blocks until the last worker exits or ctx is done.
func (d *Dispatcher) AwaitTermination(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the dispatcher has terminated.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Close is Shutdown followed by waiting for termination.
func (d *Dispatcher) Close() error {
	d.Shutdown()
	<-d.done
	return nil
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() map[string]any {
	d.keysMu.RLock()
	keys := len(d.keys)
	d.keysMu.RUnlock()
	d.taskMu.Lock()
	tasks := d.tasks.Length()
	d.taskMu.Unlock()
	live, stale := d.contexts.counts()
	return map[string]any{
		"keys":          keys,
		"workers":       int(d.alive.Load()),
		"live_contexts": live,
		"stale":         stale,
		"stale_freed":   d.staleFreed.Load(),
		"completions":   d.completions.Load(),
		"queued_tasks":  tasks,
	}
}

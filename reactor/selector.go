// File: reactor/selector.go
// Author: momentics <momentics@gmail.com>
//
// Selector multiplexes readiness over every registered channel. Registration,
// interest updates and cancellations are queued and applied by the selecting
// goroutine at the start of each round, so a round never sees its structures
// change underneath it.

package reactor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/joeycumines/logiface"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/control"
	"github.com/momentics/hioload-aio/internal/concurrency"
	"github.com/momentics/hioload-aio/interrupt"
)

// Selector is a readiness multiplexer.
type Selector struct {
	poller  *batchedPoller
	wakeup  *concurrency.WakeupSignal
	section *interrupt.Section
	log     *logiface.Logger[logiface.Event]
	metrics *control.MetricsRegistry

	closed    atomic.Bool
	selecting atomic.Bool
	// roundMu is held for the whole of a round so Close can wait it out.
	roundMu sync.Mutex

	// interest table
	regMu   sync.Mutex
	byFD    map[int]*Interest
	regs    *queue.Queue // of *Interest
	updates *queue.Queue // of *Interest
	live    []*Interest

	cancelMu sync.Mutex
	cancels  *queue.Queue // of *Interest

	readyMu  sync.Mutex
	selected map[*Interest]struct{}

	round  uint64
	rounds atomic.Int64
}

var _ api.Multiplexer = (*Selector)(nil)

// NewSelector opens a selector over cfg.Native.
func NewSelector(cfg Config) (*Selector, error) {
	native := cfg.Native
	if native == nil {
		var err error
		if native, err = NewNativePoller(); err != nil {
			return nil, err
		}
	}
	capacity := cfg.BatchCapacity
	if capacity < 2 {
		capacity = DefaultBatchCapacity
	}
	s := &Selector{
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		byFD:     make(map[int]*Interest),
		regs:     queue.New(),
		updates:  queue.New(),
		cancels:  queue.New(),
		selected: make(map[*Interest]struct{}),
	}
	p, err := newBatchedPoller(native, capacity, cfg.Logger, cfg.Metrics)
	if err != nil {
		return nil, err
	}
	s.poller = p
	s.wakeup = concurrency.NewWakeupSignal(p.ring, p.reset)
	s.section = interrupt.NewWakeupSection(s.Wakeup)
	s.log.Info().Int("batch_capacity", capacity).Log("reactor: selector opened")
	return s, nil
}

// Register adds ch to the selector for ops. Registering a channel that is
// already registered updates its interest (at the next round) and attachment
// and returns the existing Interest.
func (s *Selector) Register(ch api.Selectable, ops api.Ops, att any) (*Interest, error) {
	if ch == nil {
		return nil, api.ErrInvalidArgument
	}
	if err := validateOps(ch, ops); err != nil {
		return nil, err
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if s.closed.Load() {
		return nil, api.ErrClosed
	}
	fd := ch.FD()
	if k, ok := s.byFD[fd]; ok && k.IsValid() {
		k.Attach(att)
		k.interest.Store(uint32(ops))
		s.queueUpdate(k)
		return k, nil
	}
	k := newInterest(s, ch, ops, att)
	s.byFD[fd] = k
	s.regs.Add(k)
	return k, nil
}

func validateOps(ch api.Selectable, ops api.Ops) error {
	valid := api.OpAll
	if v, ok := ch.(api.OpsValidator); ok {
		valid = v.ValidOps()
	}
	if ops&^valid != 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "operations not supported by channel").
			WithContext("ops", ops.String()).
			WithContext("valid", valid.String())
	}
	return nil
}

// SetInterestOps changes the operations k is polled for. The new set is
// visible through InterestOps at once and polled from the next round.
func (s *Selector) SetInterestOps(k *Interest, ops api.Ops) error {
	if k == nil || k.sel != s {
		return api.ErrInvalidArgument
	}
	if !k.IsValid() {
		return api.ErrClosed
	}
	if err := validateOps(k.ch, ops); err != nil {
		return err
	}
	k.interest.Store(uint32(ops))
	s.regMu.Lock()
	s.queueUpdate(k)
	s.regMu.Unlock()
	return nil
}

// queueUpdate must be called with regMu held.
func (s *Selector) queueUpdate(k *Interest) {
	if !k.queued {
		k.queued = true
		s.updates.Add(k)
	}
}

// Cancel invalidates k. It is removed from the selector at the next safe
// point: the start or end of a round.
func (s *Selector) Cancel(k *Interest) {
	if k == nil || k.sel != s || !k.valid.CompareAndSwap(true, false) {
		return
	}
	s.cancelMu.Lock()
	s.cancels.Add(k)
	s.cancelMu.Unlock()
}

// SelectNow is Select(0).
func (s *Selector) SelectNow() (int, error) { return s.Select(0) }

// Select runs one round. A negative timeout blocks until a channel is ready or
// Wakeup is called, zero never blocks. It returns the number of interests
// whose ready operations were updated. If some batches failed natively the
// error is a NativeFailure and the count covers the batches that succeeded.
func (s *Selector) Select(timeout time.Duration) (int, error) {
	if s.closed.Load() {
		return 0, api.ErrClosed
	}
	if !s.selecting.CompareAndSwap(false, true) {
		return 0, api.ErrAlreadyInProgress
	}
	defer s.selecting.Store(false)

	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	if s.closed.Load() {
		return 0, api.ErrClosed
	}

	s.processRegistrations()
	s.processCancels()
	if s.wakeup.Pending() {
		s.wakeup.Reset()
		return 0, nil
	}

	s.round++
	err := s.poller.poll(s.live, timeoutMillis(timeout))
	n := s.updateSelected()
	s.wakeup.Reset()
	s.processCancels()

	s.rounds.Add(1)
	s.metrics.Add(control.MetricReactorRounds, 1)
	if err != nil {
		s.metrics.Add(control.MetricReactorNativeErrors, 1)
		s.log.Err().Err(err).Int("updated", n).Log("reactor: native wait failed")
		return n, err
	}
	s.log.Trace().Int("updated", n).Int("live", len(s.live)).Log("reactor: round done")
	return n, nil
}

// SelectContext runs Select as an interruptible blocking call: cancelling ctx
// wakes the round and yields api.ErrAsynchronousClose.
func (s *Selector) SelectContext(ctx context.Context, timeout time.Duration) (int, error) {
	var n int
	var serr error
	err := s.section.Do(ctx, nil, func(<-chan struct{}) (bool, error) {
		n, serr = s.Select(timeout)
		// keys selected before the cancel still count as a completed round
		return n > 0 || ctx.Err() == nil, serr
	})
	if err != nil && serr == nil {
		return 0, err
	}
	return n, err
}

func (s *Selector) processRegistrations() {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	for s.regs.Length() > 0 {
		k := s.regs.Remove().(*Interest)
		if !k.IsValid() {
			continue
		}
		k.index = len(s.live)
		k.polled = k.InterestOps()
		s.live = append(s.live, k)
	}
	for s.updates.Length() > 0 {
		k := s.updates.Remove().(*Interest)
		k.queued = false
		if k.index >= 0 {
			k.polled = k.InterestOps()
		}
	}
}

func (s *Selector) processCancels() {
	s.cancelMu.Lock()
	var cancelled []*Interest
	for s.cancels.Length() > 0 {
		cancelled = append(cancelled, s.cancels.Remove().(*Interest))
	}
	s.cancelMu.Unlock()
	if len(cancelled) == 0 {
		return
	}

	s.regMu.Lock()
	for _, k := range cancelled {
		s.removeLive(k)
		if s.byFD[k.fd] == k {
			delete(s.byFD, k.fd)
		}
	}
	s.regMu.Unlock()

	s.readyMu.Lock()
	for _, k := range cancelled {
		delete(s.selected, k)
	}
	s.readyMu.Unlock()
}

// removeLive must be called with regMu held.
func (s *Selector) removeLive(k *Interest) {
	i := k.index
	if i < 0 {
		return
	}
	last := len(s.live) - 1
	if i != last {
		moved := s.live[last]
		s.live[i] = moved
		moved.index = i
	}
	s.live[last] = nil
	s.live = s.live[:last]
	k.index = -1
}

// updateSelected merges the round's native results, scanning the readable,
// writable and exceptional sets in that order.
func (s *Selector) updateSelected() int {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	count := 0
	for _, set := range nativeSets {
		s.poller.each(set, func(k *Interest, bits api.NativeEvents) {
			if !k.IsValid() {
				return
			}
			ops := translate(bits, k.polled, k.connecting())
			_, selected := s.selected[k]
			add, counted := k.merge(s.round, ops, selected)
			if add {
				s.selected[k] = struct{}{}
			}
			if counted {
				count++
			}
		})
	}
	return count
}

// Wakeup makes the current round, or the next one if none is in progress,
// return immediately. Repeated calls before that round coalesce.
func (s *Selector) Wakeup() {
	s.wakeup.Signal()
}

// Selected returns a snapshot of the selected set.
func (s *Selector) Selected() []*Interest {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	out := make([]*Interest, 0, len(s.selected))
	for k := range s.selected {
		out = append(out, k)
	}
	return out
}

// DrainSelected returns the selected set and clears it.
func (s *Selector) DrainSelected() []*Interest {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	out := make([]*Interest, 0, len(s.selected))
	for k := range s.selected {
		out = append(out, k)
	}
	clear(s.selected)
	return out
}

// Keys returns every live or pending registration that is still valid.
func (s *Selector) Keys() []*Interest {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	out := make([]*Interest, 0, len(s.live)+s.regs.Length())
	for _, k := range s.live {
		if k.IsValid() {
			out = append(out, k)
		}
	}
	for i := 0; i < s.regs.Length(); i++ {
		if k := s.regs.Get(i).(*Interest); k.IsValid() {
			out = append(out, k)
		}
	}
	return out
}

// IsOpen reports whether Close has not been called.
func (s *Selector) IsOpen() bool { return !s.closed.Load() }

// Close wakes any round in progress, waits for it to finish, invalidates
// every interest and releases the native resources. It is idempotent.
func (s *Selector) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.wakeup.Signal()
	_ = s.section.Close()

	s.roundMu.Lock()
	defer s.roundMu.Unlock()

	s.regMu.Lock()
	for _, k := range s.live {
		k.valid.Store(false)
		k.index = -1
	}
	for s.regs.Length() > 0 {
		s.regs.Remove().(*Interest).valid.Store(false)
	}
	s.live = nil
	clear(s.byFD)
	s.regMu.Unlock()

	s.cancelMu.Lock()
	for s.cancels.Length() > 0 {
		s.cancels.Remove()
	}
	s.cancelMu.Unlock()

	s.readyMu.Lock()
	clear(s.selected)
	s.readyMu.Unlock()

	s.poller.close()
	s.log.Info().Int64("rounds", s.rounds.Load()).Log("reactor: selector closed")
	return nil
}

// Stats returns a snapshot of selector counters.
func (s *Selector) Stats() map[string]any {
	s.regMu.Lock()
	live := len(s.live)
	queued := s.regs.Length()
	s.regMu.Unlock()
	s.readyMu.Lock()
	selected := len(s.selected)
	s.readyMu.Unlock()
	return map[string]any{
		"rounds":          s.rounds.Load(),
		"live":            live,
		"queued":          queued,
		"selected":        selected,
		"helpers_alive":   s.poller.helpersAlive(),
		"helpers_spawned": s.poller.spawned.Load(),
	}
}

package completion_test

import (
	"context"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/completion"
	"github.com/momentics/hioload-aio/control"
	"github.com/momentics/hioload-aio/fake"
	"github.com/momentics/hioload-aio/pending"
)

func newTestDispatcher(t *testing.T, inline int) (*completion.Dispatcher, *fake.Port, *control.MetricsRegistry) {
	t.Helper()
	port := fake.NewPort()
	metrics := control.NewMetricsRegistry()
	d, err := completion.NewDispatcher(completion.Config{
		Port:                 port,
		Workers:              2,
		MaxInlineInvocations: inline,
		DeferredPoolSize:     8,
		Metrics:              metrics,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		d.ShutdownNow()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.AwaitTermination(ctx)
	})
	return d, port, metrics
}

func waitOp(t *testing.T, op *pending.Operation) (int, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return op.Wait(ctx)
}

func TestDispatcher_PendingCompletesThroughPort(t *testing.T) {
	d, port, metrics := newTestDispatcher(t, 4)
	ch := fake.NewChannel(1, 0)
	key, err := d.Associate(ch, 77)
	require.NoError(t, err)
	bound, ok := port.KeyOf(77)
	require.True(t, ok)
	assert.Equal(t, key, bound)

	op := d.Submit(ch, "read", port.Call(completion.StatusPending, 0, nil))
	assert.False(t, op.IsDone())
	assert.Equal(t, 1, ch.Operations().Len())
	assert.Equal(t, "read", op.Context())

	issued := port.Issued()
	require.Len(t, issued, 1)
	require.NoError(t, port.Complete(key, issued[0], 42))

	n, err := waitOp(t, op)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Zero(t, port.Allocated())
	assert.Zero(t, ch.Operations().Len())
	assert.Equal(t, int64(1), metrics.Get(control.MetricCompletions))
}

func TestDispatcher_FailedCompletionCarriesErrno(t *testing.T) {
	d, port, _ := newTestDispatcher(t, 4)
	ch := fake.NewChannel(1, 0)
	key, err := d.Associate(ch, 0)
	require.NoError(t, err)

	op := d.Submit(ch, nil, port.Call(completion.StatusPending, 0, nil))
	require.NoError(t, port.Fail(key, port.Issued()[0], syscall.ECONNRESET))

	_, err = waitOp(t, op)
	assert.ErrorIs(t, err, api.ErrNativeFailure)
	errno, ok := api.ErrnoOf(err)
	require.True(t, ok)
	assert.Equal(t, syscall.ECONNRESET, errno)
	assert.Equal(t, pending.StateFailed, op.State())
}

func TestDispatcher_ImmediateCompletionRacesWorker(t *testing.T) {
	d, port, _ := newTestDispatcher(t, 4)
	ch := fake.NewChannel(1, 0)
	key, err := d.Associate(ch, 0)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		call := func(h api.ResultHandle) (completion.Status, int, error) {
			require.NoError(t, port.Complete(key, h, 6))
			return completion.StatusCompleted, 5, nil
		}
		op := d.Submit(ch, nil, call)
		var transitions atomic.Int32
		op.OnComplete(func(*pending.Operation) { transitions.Add(1) })

		n, err := waitOp(t, op)
		require.NoError(t, err)
		require.Contains(t, []int{5, 6}, n)
		require.Eventually(t, func() bool {
			return ch.Operations().Len() == 0 && transitions.Load() == 1
		}, time.Second, time.Millisecond)
	}
	require.Eventually(t, func() bool { return port.Allocated() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 200, port.Freed())
}

func TestDispatcher_SkipPortAndFailedStart(t *testing.T) {
	d, port, _ := newTestDispatcher(t, 4)
	ch := fake.NewChannel(1, 0)
	_, err := d.Associate(ch, 0)
	require.NoError(t, err)

	op := d.Submit(ch, nil, port.Call(completion.StatusCompletedSkipPort, 9, nil))
	n, err := waitOp(t, op)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	op = d.Submit(ch, nil, port.Call(completion.StatusFailed, 0, syscall.EBADF))
	_, err = waitOp(t, op)
	assert.ErrorIs(t, err, api.ErrNativeFailure)

	assert.Zero(t, port.Allocated())
	assert.Zero(t, ch.Operations().Len())
}

func TestDispatcher_ClosedChannelContextsFreedInAnyOrder(t *testing.T) {
	port := fake.NewPort()
	metrics := control.NewMetricsRegistry()
	d, err := completion.NewDispatcher(completion.Config{Port: port, Workers: 3, Metrics: metrics})
	require.NoError(t, err)

	a, b := fake.NewChannel(1, 0), fake.NewChannel(2, 0)
	ka, err := d.Associate(a, 0)
	require.NoError(t, err)
	_, err = d.Associate(b, 0)
	require.NoError(t, err)

	var ops []*pending.Operation
	for i := 0; i < 25; i++ {
		ops = append(ops, d.Submit(a, nil, port.Call(completion.StatusPending, 0, nil)))
		ops = append(ops, d.Submit(b, nil, port.Call(completion.StatusPending, 0, nil)))
	}
	require.Equal(t, 50, port.Allocated())

	assert.Equal(t, 25, a.Operations().Close())
	// late completions for a, newest first
	issued := port.Issued()
	for i := len(issued) - 2; i >= 0; i -= 4 {
		require.NoError(t, port.Complete(ka, issued[i], 1))
	}

	d.ShutdownNow()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.AwaitTermination(ctx))

	for _, op := range ops {
		_, err := op.Result()
		assert.ErrorIs(t, err, api.ErrAsynchronousClose)
	}
	assert.Zero(t, port.Allocated())
	assert.Equal(t, 50, port.Freed())
	assert.Equal(t, int64(50), metrics.Get(control.MetricStaleFreed))
	assert.Equal(t, 0, d.Stats()["workers"])
	assert.True(t, port.IsClosed())
}

func TestDispatcher_UnmappedKeyIsStale(t *testing.T) {
	d, port, _ := newTestDispatcher(t, 4)
	ch := fake.NewChannel(1, 0)
	key, err := d.Associate(ch, 0)
	require.NoError(t, err)
	op := d.Submit(ch, nil, port.Call(completion.StatusPending, 0, nil))

	d.Disassociate(key)
	require.NoError(t, port.Complete(key, port.Issued()[0], 1))
	require.Eventually(t, func() bool { return port.Allocated() == 0 }, time.Second, time.Millisecond)
	assert.False(t, op.IsDone())
	assert.Equal(t, int64(1), d.Stats()["stale_freed"])
}

func TestDispatcher_KeysReusedAfterDisassociate(t *testing.T) {
	d, _, _ := newTestDispatcher(t, 4)
	k1, err := d.Associate(fake.NewChannel(1, 0), 0)
	require.NoError(t, err)
	k2, err := d.Associate(fake.NewChannel(2, 0), 0)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
	assert.NotZero(t, k1)

	d.Disassociate(k1)
	k3, err := d.Associate(fake.NewChannel(3, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, k1, k3)
	assert.Equal(t, 2, d.Stats()["keys"])

	d.Shutdown()
	_, err = d.Associate(fake.NewChannel(4, 0), 0)
	assert.ErrorIs(t, err, api.ErrClosed)
}

func TestDispatcher_SubmitTask(t *testing.T) {
	d, _, _ := newTestDispatcher(t, 4)
	ran := make(chan struct{})
	require.NoError(t, d.SubmitTask(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	assert.ErrorIs(t, d.SubmitTask(nil), api.ErrInvalidArgument)
}

func TestDispatcher_ZeroBudgetDefersEveryCallback(t *testing.T) {
	d, port, metrics := newTestDispatcher(t, 0)
	ch := fake.NewChannel(1, 0)
	key, err := d.Associate(ch, 0)
	require.NoError(t, err)

	called := make(chan struct{})
	op := d.Submit(ch, nil, port.Call(completion.StatusPending, 0, nil))
	op.OnComplete(func(*pending.Operation) { close(called) })
	require.NoError(t, port.Complete(key, port.Issued()[0], 3))

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
	assert.Equal(t, int64(1), metrics.Get(control.MetricDeferred))
}

func TestDispatcher_PanickingCallbackKeepsWorkers(t *testing.T) {
	d, port, _ := newTestDispatcher(t, 8)
	ch := fake.NewChannel(1, 0)
	key, err := d.Associate(ch, 0)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		op := d.Submit(ch, nil, port.Call(completion.StatusPending, 0, nil))
		op.OnComplete(func(*pending.Operation) { panic("callback failure") })
		require.NoError(t, port.Complete(key, port.Issued()[i], 1))
		_, err := waitOp(t, op)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, d.Stats()["workers"])
}

func TestDispatcher_CloseWithoutChannels(t *testing.T) {
	port := fake.NewPort()
	d, err := completion.NewDispatcher(completion.Config{Port: port, Workers: 2})
	require.NoError(t, err)
	require.NoError(t, d.Close())
	<-d.Done()
	assert.True(t, port.IsClosed())
	assert.ErrorIs(t, d.SubmitTask(func() {}), api.ErrClosed)
}

func TestDispatcher_PinnedWorkersStillServe(t *testing.T) {
	port := fake.NewPort()
	d, err := completion.NewDispatcher(completion.Config{Port: port, Workers: 2, MaxInlineInvocations: 4, PinWorkers: true})
	require.NoError(t, err)
	ch := fake.NewChannel(1, 0)
	key, err := d.Associate(ch, 0)
	require.NoError(t, err)

	op := d.Submit(ch, nil, port.Call(completion.StatusPending, 0, nil))
	require.NoError(t, port.Complete(key, port.Issued()[0], 7))
	n, err := waitOp(t, op)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	d.Disassociate(key)
	require.NoError(t, d.Close())
}

func TestDispatcher_SecondReadInFlightRejected(t *testing.T) {
	d, port, _ := newTestDispatcher(t, 4)
	ch := fake.NewChannel(1, 0)
	key, err := d.Associate(ch, 0)
	require.NoError(t, err)

	first := d.SubmitIO(ch, completion.DirRead, nil, 0, port.Call(completion.StatusPending, 0, nil))
	second := d.SubmitIO(ch, completion.DirRead, nil, 0, port.Call(completion.StatusPending, 0, nil))
	_, err = second.Result()
	assert.ErrorIs(t, err, api.ErrAlreadyInProgress)
	assert.Len(t, port.Issued(), 1)
	assert.Equal(t, 1, port.Allocated())

	// the write direction is independent
	write := d.SubmitIO(ch, completion.DirWrite, nil, 0, port.Call(completion.StatusPending, 0, nil))
	assert.False(t, write.IsDone())

	require.NoError(t, port.Complete(key, port.Issued()[0], 2))
	n, err := waitOp(t, first)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	third := d.SubmitIO(ch, completion.DirRead, nil, 0, port.Call(completion.StatusPending, 0, nil))
	assert.False(t, third.IsDone())
}

func TestDispatcher_ReadTimeoutKillsDirection(t *testing.T) {
	d, port, _ := newTestDispatcher(t, 4)
	ch := fake.NewChannel(1, 0)
	key, err := d.Associate(ch, 0)
	require.NoError(t, err)

	op := d.SubmitIO(ch, completion.DirRead, nil, 10*time.Millisecond, port.Call(completion.StatusPending, 0, nil))
	_, err = waitOp(t, op)
	assert.ErrorIs(t, err, api.ErrTimeout)
	assert.True(t, ch.Operations().Gate(completion.DirRead).Killed())

	next := d.SubmitIO(ch, completion.DirRead, nil, 0, port.Call(completion.StatusPending, 0, nil))
	_, err = next.Result()
	assert.ErrorIs(t, err, api.ErrTimeout)
	assert.Len(t, port.Issued(), 1)

	// the native call still completes; its context is freed and the result dropped
	require.NoError(t, port.Complete(key, port.Issued()[0], 5))
	require.Eventually(t, func() bool { return port.Allocated() == 0 }, time.Second, time.Millisecond)
	assert.Zero(t, ch.Operations().Len())
	_, err = op.Result()
	assert.ErrorIs(t, err, api.ErrTimeout)
}

func TestDispatcher_SubmitOnUnboundChannelAllocatesNothing(t *testing.T) {
	d, port, _ := newTestDispatcher(t, 4)

	stranger := fake.NewChannel(1, 0)
	_, err := d.Submit(stranger, nil, port.Call(completion.StatusPending, 0, nil)).Result()
	assert.ErrorIs(t, err, api.ErrClosed)

	gone := fake.NewChannel(2, 0)
	key, err := d.Associate(gone, 0)
	require.NoError(t, err)
	d.Disassociate(key)
	_, err = d.Submit(gone, nil, port.Call(completion.StatusPending, 0, nil)).Result()
	assert.ErrorIs(t, err, api.ErrClosed)

	closed := fake.NewChannel(3, 0)
	_, err = d.Associate(closed, 0)
	require.NoError(t, err)
	closed.Operations().Close()
	_, err = d.Submit(closed, nil, port.Call(completion.StatusPending, 0, nil)).Result()
	assert.ErrorIs(t, err, api.ErrClosed)
	_, err = d.SubmitIO(closed, completion.DirRead, nil, 0, port.Call(completion.StatusPending, 0, nil)).Result()
	assert.ErrorIs(t, err, api.ErrClosed)

	assert.Empty(t, port.Issued())
	assert.Zero(t, port.Allocated())
}

func TestDispatcher_SubmitAfterCloseAllocatesNothing(t *testing.T) {
	port := fake.NewPort()
	d, err := completion.NewDispatcher(completion.Config{Port: port, Workers: 2})
	require.NoError(t, err)
	ch := fake.NewChannel(1, 0)
	require.NoError(t, d.Close())

	_, err = d.Submit(ch, nil, port.Call(completion.StatusPending, 0, nil)).Result()
	assert.ErrorIs(t, err, api.ErrClosed)
	assert.Empty(t, port.Issued())
	assert.Zero(t, port.Allocated())
}

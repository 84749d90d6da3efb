package facade_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/completion"
	"github.com/momentics/hioload-aio/control"
	"github.com/momentics/hioload-aio/facade"
	"github.com/momentics/hioload-aio/fake"
	"github.com/momentics/hioload-aio/internal/logging"
)

func testConfig(t *testing.T, backend string) facade.Config {
	t.Helper()
	log, err := logging.New(io.Discard, "debug")
	require.NoError(t, err)
	cfg := facade.DefaultConfig()
	cfg.Backend = backend
	cfg.Workers = 2
	cfg.TaskWorkers = 2
	cfg.NativePoller = fake.NewPoller()
	cfg.Port = fake.NewPort()
	cfg.Logger = log
	return cfg
}

func shutdown(t *testing.T, e *facade.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
}

func TestEngine_Readiness(t *testing.T) {
	cfg := testConfig(t, control.BackendReadiness)
	fp := cfg.NativePoller.(*fake.Poller)
	e, err := facade.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, control.BackendReadiness, e.Backend())

	_, err = e.Dispatcher()
	assert.ErrorIs(t, err, api.ErrNotSupported)
	sel, err := e.Selector()
	require.NoError(t, err)

	ch := fake.NewChannel(5, 0)
	k, err := sel.Register(ch, api.OpRead, nil)
	require.NoError(t, err)
	fp.SetReady(5, api.EventReadable)
	n, err := sel.SelectNow()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, k.IsReadable())

	ran := make(chan struct{})
	require.NoError(t, e.SubmitTask(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	stats := e.Control().Stats()
	assert.Equal(t, int64(1), stats[control.MetricReactorRounds])
	require.Contains(t, stats, "debug.selector")
	assert.Equal(t, 1, stats["debug.selector"].(map[string]any)["live"])

	shutdown(t, e)
	assert.False(t, sel.IsOpen())
	assert.ErrorIs(t, e.SubmitTask(func() {}), api.ErrClosed)
	assert.NoError(t, e.Shutdown(context.Background()))
}

func TestEngine_WakeupInterruptsSelect(t *testing.T) {
	e, err := facade.New(testConfig(t, control.BackendReadiness))
	require.NoError(t, err)
	defer shutdown(t, e)
	sel, err := e.Selector()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sel.Select(-1)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	e.Wakeup()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Select was not woken")
	}
}

func TestEngine_Completion(t *testing.T) {
	cfg := testConfig(t, control.BackendCompletion)
	port := cfg.Port.(*fake.Port)
	e, err := facade.New(cfg)
	require.NoError(t, err)

	_, err = e.Selector()
	assert.ErrorIs(t, err, api.ErrNotSupported)
	d, err := e.Dispatcher()
	require.NoError(t, err)
	e.Wakeup()

	ran := make(chan struct{})
	require.NoError(t, e.SubmitTask(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	require.NoError(t, e.Control().SetConfig(map[string]any{"max_inline_invocations": 3}))
	assert.Equal(t, 3, e.Control().GetConfig()["max_inline_invocations"])
	assert.Contains(t, e.Control().Stats(), "debug.dispatcher")

	shutdown(t, e)
	<-d.Done()
	assert.True(t, port.IsClosed())
}

func TestEngine_CompletionShutdownForcedOnDeadline(t *testing.T) {
	cfg := testConfig(t, control.BackendCompletion)
	port := cfg.Port.(*fake.Port)
	e, err := facade.New(cfg)
	require.NoError(t, err)
	d, err := e.Dispatcher()
	require.NoError(t, err)

	ch := fake.NewChannel(1, 0)
	_, err = d.Associate(ch, 0)
	require.NoError(t, err)
	op := d.Submit(ch, nil, port.Call(completion.StatusPending, 0, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not terminate")
	}
	_, err = op.Result()
	assert.ErrorIs(t, err, api.ErrAsynchronousClose)
	assert.Zero(t, port.Allocated())
}

func TestEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "epoll")
	_, err := facade.New(cfg)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	cfg = testConfig(t, control.BackendReadiness)
	cfg.LogLevel = "loud"
	cfg.Logger = nil
	_, err = facade.New(cfg)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestDefaultEngineLifecycle(t *testing.T) {
	e, err := facade.Init(testConfig(t, control.BackendCompletion))
	require.NoError(t, err)

	again, err := facade.Init(testConfig(t, control.BackendReadiness))
	assert.ErrorIs(t, err, api.ErrAlreadyInProgress)
	assert.Same(t, e, again)

	got, err := facade.Default()
	require.NoError(t, err)
	assert.Same(t, e, got)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, facade.ShutdownDefault(ctx))
	assert.NoError(t, facade.ShutdownDefault(ctx))

	e2, err := facade.Init(testConfig(t, control.BackendReadiness))
	require.NoError(t, err)
	assert.NotSame(t, e, e2)
	require.NoError(t, facade.ShutdownDefault(ctx))
}

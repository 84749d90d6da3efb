package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-aio/api"
)

func TestExecutor_RunsAllTasksBeforeClose(t *testing.T) {
	e := NewExecutor(4, nil)
	var ran atomic.Int64
	for i := 0; i < 1000; i++ {
		require.NoError(t, e.Submit(func() { ran.Add(1) }))
	}
	e.Close()
	assert.Equal(t, int64(1000), ran.Load())
	assert.Equal(t, int64(0), e.Stats()["pending_tasks"])
}

func TestExecutor_SubmitAfterClose(t *testing.T) {
	e := NewExecutor(1, nil)
	e.Close()
	assert.ErrorIs(t, e.Submit(func() {}), api.ErrClosed)
	e.Close()
}

func TestExecutor_PanicKeepsWorkerAlive(t *testing.T) {
	e := NewExecutor(1, nil)
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, e.Submit(func() { panic("boom") }))
	require.NoError(t, e.Submit(wg.Done))
	wg.Wait()
	e.Close()
	assert.Equal(t, int64(1), e.Stats()["panics"])
}

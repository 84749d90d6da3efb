// File: adapters/executor_adapter.go
// Package adapters provides glue between internal concurrency and api.Executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ExecutorAdapter implements api.Executor and api.GracefulShutdown by
// delegating to the internal concurrency.Executor. The readiness engine runs
// tasks submitted through its facade here, off the selecting goroutine.

package adapters

import (
	"context"

	"github.com/joeycumines/logiface"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/internal/concurrency"
)

// ExecutorAdapter wraps an internal concurrency.Executor to satisfy the api.Executor contract.
type ExecutorAdapter struct {
	exec *concurrency.Executor
}

var (
	_ api.Executor         = (*ExecutorAdapter)(nil)
	_ api.GracefulShutdown = (*ExecutorAdapter)(nil)
)

// NewExecutorAdapter starts an executor with the given number of worker goroutines.
func NewExecutorAdapter(workers int, log *logiface.Logger[logiface.Event]) *ExecutorAdapter {
	return &ExecutorAdapter{exec: concurrency.NewExecutor(workers, log)}
}

// Submit dispatches a task function to be executed asynchronously.
// Returns api.ErrClosed once the executor has been shut down.
func (ea *ExecutorAdapter) Submit(task func()) error {
	return ea.exec.Submit(task)
}

// NumWorkers returns the number of worker goroutines.
func (ea *ExecutorAdapter) NumWorkers() int {
	return ea.exec.NumWorkers()
}

// Stats exposes the executor counters.
func (ea *ExecutorAdapter) Stats() map[string]int64 {
	return ea.exec.Stats()
}

// Shutdown stops intake and waits for queued tasks to drain. If ctx ends
// first the workers keep draining in the background.
func (ea *ExecutorAdapter) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ea.exec.Close()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// File: completion/invoker.go
// Author: momentics <momentics@gmail.com>
//
// Deferred callback invocation on a bounded goroutine pool, so a worker that
// has spent its inline budget, and the reserved worker, never run user code.

package completion

import (
	"context"
	"fmt"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/joeycumines/logiface"

	"github.com/momentics/hioload-aio/control"
)

type invoker struct {
	pool    gopool.Pool
	log     *logiface.Logger[logiface.Event]
	metrics *control.MetricsRegistry
}

func newInvoker(size int, log *logiface.Logger[logiface.Event], metrics *control.MetricsRegistry) *invoker {
	if size <= 0 {
		size = control.DefaultConfig().DeferredPoolSize
	}
	inv := &invoker{
		pool:    gopool.NewPool("hioload-aio.completion", int32(size), gopool.NewConfig()),
		log:     log,
		metrics: metrics,
	}
	inv.pool.SetPanicHandler(func(_ context.Context, r interface{}) {
		inv.log.Warning().Str("panic", fmt.Sprint(r)).Log("completion: deferred callback panicked")
	})
	return inv
}

// deferred hands fn to the pool.
func (inv *invoker) deferred(fn func()) {
	inv.metrics.Add(control.MetricDeferred, 1)
	inv.pool.Go(fn)
}

// direct runs fn on the calling worker, containing panics.
func (inv *invoker) direct(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			inv.log.Warning().Str("panic", fmt.Sprint(r)).Log("completion: inline callback panicked")
		}
	}()
	fn()
}

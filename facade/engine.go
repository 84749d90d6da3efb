// File: facade/engine.go
// Unified facade layer for hioload-aio.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine aggregates one notification model with its control surface. The
// back end is fixed at construction by Config.Backend: the readiness engine
// owns a Selector plus a task executor, the completion engine owns a
// Dispatcher whose workers also run submitted tasks.

package facade

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-aio/adapters"
	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/completion"
	"github.com/momentics/hioload-aio/control"
	"github.com/momentics/hioload-aio/internal/logging"
	"github.com/momentics/hioload-aio/reactor"
)

// Config holds the engine tunables plus the native primitives to run on.
type Config struct {
	control.Config

	// NativePoller backs the readiness engine. Nil selects the platform
	// poller.
	NativePoller api.NativePoller
	// Port backs the completion engine. Nil selects the platform port.
	Port api.Port
	// Logger receives engine events. Nil builds a stderr logger at
	// Config.LogLevel.
	Logger logging.Logger
}

// DefaultConfig returns the control defaults with platform primitives.
func DefaultConfig() Config {
	return Config{Config: control.DefaultConfig()}
}

// Engine is the process-facing handle over one back end.
type Engine struct {
	backend string
	log     logging.Logger
	control *adapters.ControlAdapter

	selector *reactor.Selector
	tasks    *adapters.ExecutorAdapter

	dispatcher *completion.Dispatcher

	shutdownOnce sync.Once
	shutdownErr  error
}

var _ api.Engine = (*Engine)(nil)

// New validates cfg and starts the selected back end.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		var err error
		if log, err = logging.New(nil, cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	e := &Engine{
		backend: cfg.Backend,
		log:     logging.Component(log, "facade"),
		control: adapters.NewControlAdapter(cfg.Config),
	}

	switch cfg.Backend {
	case control.BackendReadiness:
		sel, err := reactor.NewSelector(reactor.Config{
			Native:        cfg.NativePoller,
			BatchCapacity: cfg.BatchCapacity,
			Logger:        logging.Component(log, "reactor"),
			Metrics:       e.control.Metrics(),
		})
		if err != nil {
			return nil, err
		}
		e.selector = sel
		e.tasks = adapters.NewExecutorAdapter(cfg.TaskWorkers, logging.Component(log, "executor"))
		e.control.RegisterDebugProbe("selector", func() any { return sel.Stats() })
		e.control.RegisterDebugProbe("tasks", func() any { return e.tasks.Stats() })
	case control.BackendCompletion:
		d, err := completion.NewDispatcher(completion.Config{
			Port:                 cfg.Port,
			Workers:              cfg.Workers,
			MaxInlineInvocations: cfg.MaxInlineInvocations,
			DeferredPoolSize:     cfg.DeferredPoolSize,
			PinWorkers:           cfg.PinWorkers,
			Logger:               logging.Component(log, "completion"),
			Metrics:              e.control.Metrics(),
			Store:                e.control.Store(),
		})
		if err != nil {
			return nil, err
		}
		e.dispatcher = d
		e.control.RegisterDebugProbe("dispatcher", func() any { return d.Stats() })
	}

	e.log.Info().Str("backend", e.backend).Log("facade: engine started")
	return e, nil
}

// Backend returns control.BackendReadiness or control.BackendCompletion.
func (e *Engine) Backend() string { return e.backend }

// Control returns the config, metrics and debug surface.
func (e *Engine) Control() api.Control { return e.control }

// Reload applies a TOML config file at runtime.
func (e *Engine) Reload(path string) error { return e.control.Reload(path) }

// Selector returns the readiness multiplexer, or api.ErrNotSupported on the
// completion engine.
func (e *Engine) Selector() (*reactor.Selector, error) {
	if e.selector == nil {
		return nil, api.NewError(api.ErrCodeNotSupported, "engine has no selector").WithContext("backend", e.backend)
	}
	return e.selector, nil
}

// Dispatcher returns the completion dispatcher, or api.ErrNotSupported on
// the readiness engine.
func (e *Engine) Dispatcher() (*completion.Dispatcher, error) {
	if e.dispatcher == nil {
		return nil, api.NewError(api.ErrCodeNotSupported, "engine has no dispatcher").WithContext("backend", e.backend)
	}
	return e.dispatcher, nil
}

// Wakeup interrupts a blocked Select on the readiness engine.
func (e *Engine) Wakeup() {
	if e.selector != nil {
		e.selector.Wakeup()
	}
}

// SubmitTask runs fn on the task executor or a dispatcher worker.
func (e *Engine) SubmitTask(fn func()) error {
	if e.dispatcher != nil {
		return e.dispatcher.SubmitTask(fn)
	}
	return e.tasks.Submit(fn)
}

// Shutdown tears the back end down, giving up waiting when ctx is done. A
// completion engine that misses the deadline is forced with ShutdownNow.
// Repeated calls return the first result.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.shutdownOnce.Do(func() {
		var g errgroup.Group
		if e.selector != nil {
			g.Go(e.selector.Close)
			g.Go(func() error { return e.tasks.Shutdown(ctx) })
		}
		if e.dispatcher != nil {
			g.Go(func() error {
				e.dispatcher.Shutdown()
				if err := e.dispatcher.AwaitTermination(ctx); err != nil {
					e.log.Warning().Err(err).Log("facade: forcing dispatcher shutdown")
					e.dispatcher.ShutdownNow()
					return err
				}
				return nil
			})
		}
		e.shutdownErr = g.Wait()
		e.log.Info().Str("backend", e.backend).Err(e.shutdownErr).Log("facade: engine stopped")
	})
	return e.shutdownErr
}

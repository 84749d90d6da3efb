// File: facade/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide default engine. Init, Default and ShutdownDefault share one
// lock, so the default is created at most once per Init/ShutdownDefault
// cycle.

package facade

import (
	"context"
	"sync"

	"github.com/momentics/hioload-aio/api"
)

var (
	defaultMu     sync.Mutex
	defaultEngine *Engine
)

// Init creates the default engine from cfg. It fails if one already exists.
func Init(cfg Config) (*Engine, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine != nil {
		return defaultEngine, api.NewError(api.ErrCodeAlreadyInProgress, "default engine already initialized").
			WithContext("backend", defaultEngine.Backend())
	}
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	defaultEngine = e
	return e, nil
}

// Default returns the default engine, creating it from DefaultConfig when
// Init was never called.
func Default() (*Engine, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		e, err := New(DefaultConfig())
		if err != nil {
			return nil, err
		}
		defaultEngine = e
	}
	return defaultEngine, nil
}

// ShutdownDefault shuts the default engine down and forgets it. It is a
// no-op when there is none.
func ShutdownDefault(ctx context.Context) error {
	defaultMu.Lock()
	e := defaultEngine
	defaultEngine = nil
	defaultMu.Unlock()
	if e == nil {
		return nil
	}
	return e.Shutdown(ctx)
}

// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Typed engine configuration, decoded from TOML, with a thread-safe store
// that merges updates and propagates hot-reload to listeners.

package control

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/momentics/hioload-aio/api"
)

// Back end names accepted in Config.Backend.
const (
	BackendReadiness  = "readiness"
	BackendCompletion = "completion"
)

// Config holds the engine tunables.
type Config struct {
	// Backend selects the notification model.
	Backend string `toml:"backend"`
	// BatchCapacity is the slot capacity of one native wait call, wakeup
	// token included.
	BatchCapacity int `toml:"batch_capacity"`
	// Workers is the completion dispatcher pool size (minimum 2).
	Workers int `toml:"workers"`
	// MaxInlineInvocations bounds consecutive callbacks a worker runs
	// inline before deferring to the invoker pool.
	MaxInlineInvocations int `toml:"max_inline_invocations"`
	// DeferredPoolSize caps goroutines running deferred callbacks.
	DeferredPoolSize int `toml:"deferred_pool_size"`
	// TaskWorkers sizes the readiness engine's task executor.
	TaskWorkers int `toml:"task_workers"`
	// PinWorkers binds each completion worker to its own CPU.
	PinWorkers bool `toml:"pin_workers"`
	// LogLevel is one of trace, debug, info, warning, err, disabled.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	workers := runtime.GOMAXPROCS(0)
	if workers < 2 {
		workers = 2
	}
	return Config{
		Backend:              BackendReadiness,
		BatchCapacity:        1024,
		Workers:              workers,
		MaxInlineInvocations: 16,
		DeferredPoolSize:     10000,
		TaskWorkers:          workers,
		LogLevel:             "info",
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Backend != BackendReadiness && c.Backend != BackendCompletion:
		return api.NewError(api.ErrCodeInvalidArgument, "unknown backend").WithContext("backend", c.Backend)
	case c.BatchCapacity < 2:
		return api.NewError(api.ErrCodeInvalidArgument, "batch_capacity must be at least 2").WithContext("batch_capacity", c.BatchCapacity)
	case c.Workers < 2:
		return api.NewError(api.ErrCodeInvalidArgument, "workers must be at least 2").WithContext("workers", c.Workers)
	case c.MaxInlineInvocations < 0:
		return api.NewError(api.ErrCodeInvalidArgument, "max_inline_invocations must not be negative")
	}
	return nil
}

// ParseConfig decodes TOML from r over the defaults.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("control: decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("control: open config: %w", err)
	}
	defer f.Close()
	return ParseConfig(f)
}

// Map flattens the config under its TOML key names.
func (c Config) Map() map[string]any {
	return map[string]any{
		"backend":                c.Backend,
		"batch_capacity":         c.BatchCapacity,
		"workers":                c.Workers,
		"max_inline_invocations": c.MaxInlineInvocations,
		"deferred_pool_size":     c.DeferredPoolSize,
		"task_workers":           c.TaskWorkers,
		"pin_workers":            c.PinWorkers,
		"log_level":              c.LogLevel,
	}
}

// apply merges one key into c.
func (c *Config) apply(key string, v any) error {
	str := func() (string, error) {
		s, ok := v.(string)
		if !ok {
			return "", api.NewError(api.ErrCodeInvalidArgument, "expected string").WithContext("key", key)
		}
		return s, nil
	}
	num := func() (int, error) {
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			return int(n), nil
		}
		return 0, api.NewError(api.ErrCodeInvalidArgument, "expected number").WithContext("key", key)
	}
	flag := func() (bool, error) {
		b, ok := v.(bool)
		if !ok {
			return false, api.NewError(api.ErrCodeInvalidArgument, "expected bool").WithContext("key", key)
		}
		return b, nil
	}
	var err error
	switch key {
	case "backend":
		c.Backend, err = str()
	case "log_level":
		c.LogLevel, err = str()
	case "batch_capacity":
		c.BatchCapacity, err = num()
	case "workers":
		c.Workers, err = num()
	case "max_inline_invocations":
		c.MaxInlineInvocations, err = num()
	case "deferred_pool_size":
		c.DeferredPoolSize, err = num()
	case "task_workers":
		c.TaskWorkers, err = num()
	case "pin_workers":
		c.PinWorkers, err = flag()
	default:
		err = api.NewError(api.ErrCodeInvalidArgument, "unknown config key").WithContext("key", key)
	}
	return err
}

// ConfigStore holds the current Config with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store with cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{config: cfg}
}

// Get returns a copy of the current config.
func (cs *ConfigStore) Get() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// GetSnapshot returns the current config as a key/value map.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	return cs.Get().Map()
}

// SetConfig merges new values and dispatches reload. Nothing is applied if
// any key is unknown, ill-typed, or the result fails validation.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) error {
	cs.mu.Lock()
	next := cs.config
	for k, v := range newCfg {
		if err := next.apply(k, v); err != nil {
			cs.mu.Unlock()
			return err
		}
	}
	if err := next.Validate(); err != nil {
		cs.mu.Unlock()
		return err
	}
	cs.config = next
	listeners := slices.Clone(cs.listeners)
	cs.mu.Unlock()
	cs.dispatchReload(listeners, next)
	return nil
}

// OnReload registers a listener called synchronously after each change.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes all listeners.
func (cs *ConfigStore) dispatchReload(listeners []func(Config), cfg Config) {
	for _, fn := range listeners {
		fn(cfg)
	}
}

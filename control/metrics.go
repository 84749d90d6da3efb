// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for engine monitoring.
// Counters are created on first use and updated atomically.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metric names recorded by the engines.
const (
	MetricReactorRounds         = "reactor.rounds"
	MetricReactorHelpersSpawned = "reactor.helpers_spawned"
	MetricReactorNativeErrors   = "reactor.native_errors"
	MetricCompletions           = "completion.completions"
	MetricStaleFreed            = "completion.stale_freed"
	MetricDeferred              = "completion.deferred"
)

// MetricsRegistry holds named counters. A nil registry ignores updates.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]*atomic.Int64
	updated atomic.Int64
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]*atomic.Int64),
	}
}

func (mr *MetricsRegistry) counter(key string) *atomic.Int64 {
	mr.mu.RLock()
	c, ok := mr.metrics[key]
	mr.mu.RUnlock()
	if ok {
		return c
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if c, ok = mr.metrics[key]; !ok {
		c = new(atomic.Int64)
		mr.metrics[key] = c
	}
	return c
}

// Add increments key by delta.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	if mr == nil {
		return
	}
	mr.counter(key).Add(delta)
	mr.updated.Store(time.Now().UnixNano())
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value int64) {
	if mr == nil {
		return
	}
	mr.counter(key).Store(value)
	mr.updated.Store(time.Now().UnixNano())
}

// Get returns the current value of key.
func (mr *MetricsRegistry) Get(key string) int64 {
	if mr == nil {
		return 0
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	if c, ok := mr.metrics[key]; ok {
		return c.Load()
	}
	return 0
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	if mr == nil {
		return map[string]any{}
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v.Load()
	}
	return out
}

// Updated returns the time of the last update.
func (mr *MetricsRegistry) Updated() time.Time {
	if mr == nil || mr.updated.Load() == 0 {
		return time.Time{}
	}
	return time.Unix(0, mr.updated.Load())
}

// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for the I/O engines.
//
// Provides concurrent-safe state handling primitives including:
//   - Typed TOML configuration with snapshot reads and validated updates
//   - Reload listeners notified after each accepted change
//   - Atomic counters recorded by the selector and the dispatcher
//   - Debug probe registration and state export
//
// This package is cross-platform and build-tag-partitioned as needed.
package control

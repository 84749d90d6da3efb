// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package completion implements the completion model: channels are
// associated with one shared completion port under a CompletionKey, native
// calls are submitted with a per-operation result context, and a pool of
// worker goroutines dequeues finished operations and resolves the matching
// pending.Operation exactly once.
//
// A result context may outlive its waiter when the channel is closed with
// operations outstanding. Such contexts are kept in a stale set and freed
// when their delayed completion arrives, or when the dispatcher terminates.
package completion

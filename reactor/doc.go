// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor implements the readiness model: a Selector multiplexes any
// number of registered channels over a native poll primitive whose capacity
// per call is bounded. Descriptors beyond one call's capacity are split into
// batches polled concurrently by helper goroutines, with a wakeup token in
// slot 0 of every batch so one Wakeup aborts all of them.
package reactor

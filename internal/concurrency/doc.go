// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives shared by the readiness and completion engines:
// the cross-goroutine wakeup doorbell and the task executor used for work
// submitted outside the I/O path.
package concurrency

// Package fake
// Author: momentics <momentics@gmail.com>
//
// Deterministic doubles of the native primitives for tests and demos:
// a readiness poller whose descriptors are made ready by hand, a completion
// port that records the result contexts it hands out, and a channel usable
// with both engines.
package fake

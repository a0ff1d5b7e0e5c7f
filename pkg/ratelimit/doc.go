// Package ratelimit implements fixed-window request limiting.
//
// A counter is kept per key for a configurable window. When the window
// elapses the counter starts over at zero. The MemoryStore keeps counters
// in-process and is therefore best-effort across multiple server
// instances; the RedisStore shares counters between instances when exact
// global limits matter.
//
// The HTTP middleware fails open: a storage error never blocks traffic,
// it only disables limiting for that request.
package ratelimit

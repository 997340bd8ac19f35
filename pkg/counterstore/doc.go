// Package counterstore is the shared key-value layer under rate limiting and caching.
//
// Every worker in the pool talks to the same external store, so all per-client
// admission state and all cache entries live here rather than in process memory.
// Store exposes two kinds of operations:
//
//   - Atomic primitives for the limiters: SlideWindow, TakeToken and Incr. Each
//     one prunes, checks and updates its state in a single round trip (a Lua
//     script on Redis, one critical section in memory), so two concurrent
//     requests from the same client cannot both read the same pre-update state.
//   - Plain byte-oriented operations for the cache: Get, Set, Delete, Scan.
//
// Two implementations are provided:
//
//	// Distributed, shared across workers
//	store := counterstore.NewRedisStore(client)
//
//	// Single process, for tests and local development
//	store := counterstore.NewMemoryStore()
//	go store.Start(ctx) // background removal of expired keys
//
// Callers choose the clock: limiters pass "now" explicitly so the store never
// mixes its own time source into window arithmetic.
//
// Missing keys surface as ErrNotFound. Transport failures are returned wrapped
// in ErrStoreUnavailable so callers can decide to fail open.
package counterstore

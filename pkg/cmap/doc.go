// Package cmap provides a concurrent map used for heapsight's shared caches.
//
//   - Sharding: a fixed power-of-two number of shards
//   - Fine-grained locking: per-shard RWMutex
//   - Caller-supplied hashing, with Uint64Hasher for address keys
//
// Usage:
//
//	names := cmap.New[domain.Addr, string](cmap.Uint64Hasher[domain.Addr]())
//	name, existed := names.GetOrSet(typeAddr, "UIRoot")
//
// All operations are thread-safe. Get uses RLock; GetOrSet and Clear use
// Lock.
package cmap

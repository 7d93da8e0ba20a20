package cmap

import (
	"encoding/binary"
	"sync"

	"github.com/spaolacci/murmur3"
)

// ShardCount is the number of shards of every Map.
const ShardCount = 16

// Map is a concurrent-safe sharded map.
type Map[K comparable, V any] struct {
	shards [ShardCount]*shard[K, V]
	hash   func(K) uint64
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// Uint64Hasher hashes integer keys such as addresses with murmur3. Heap
// addresses share their low bits (alignment) and high bits (arena), so the
// raw value makes a poor shard index.
func Uint64Hasher[K ~uint64]() func(K) uint64 {
	return func(k K) uint64 {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(k))
		return murmur3.Sum64(b[:])
	}
}

// New creates a map that picks the shard of a key with hash.
func New[K comparable, V any](hash func(K) uint64) *Map[K, V] {
	m := &Map[K, V]{hash: hash}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return m.shards[m.hash(key)%ShardCount]
}

// Get retrieves a value by key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	shard := m.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	val, ok := shard.items[key]
	return val, ok
}

// GetOrSet returns the existing value for a key, or stores and returns value
// if absent. The boolean reports whether the value already existed. Racing
// callers all observe the first stored value.
func (m *Map[K, V]) GetOrSet(key K, value V) (V, bool) {
	shard := m.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if existing, ok := shard.items[key]; ok {
		return existing, true
	}

	shard.items[key] = value
	return value, false
}

// Count returns the total number of items.
func (m *Map[K, V]) Count() int {
	count := 0
	for _, shard := range m.shards {
		shard.mu.RLock()
		count += len(shard.items)
		shard.mu.RUnlock()
	}
	return count
}

// Clear removes all items.
func (m *Map[K, V]) Clear() {
	for _, shard := range m.shards {
		shard.mu.Lock()
		shard.items = make(map[K]V)
		shard.mu.Unlock()
	}
}

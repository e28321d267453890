// Package cmap contains a thread-safe concurrent awaitable map.
//
// It is optimised for large maps (tens of thousands of entries, e.g. the
// process-wide target set) in highly contended environments; for smaller
// maps another implementation may do better. It is specifically useful in
// cases where a caller wants to be able to await an item entering the map
// (for instance, waiting for another goroutine to finish matching a target)
// rather than having to poll for it.
package cmap

import (
	"fmt"
	"sync"
)

// DefaultShardCount is a reasonable default shard count for large maps.
const DefaultShardCount = 1 << 8

// SmallShardCount suits maps that are expected to stay small (per-scope
// pools, single-project caches) where DefaultShardCount would just waste
// memory on mostly-empty shards.
const SmallShardCount = 1 << 4

// A Map is the top-level map type. All functions on it are threadsafe.
// It should be constructed via New() rather than creating an instance directly.
type Map[K comparable, V any] struct {
	shards []shard[K, V]
	hasher func(K) uint64
	mask   uint64
}

// New creates a new Map using the given hasher to hash items in it.
// The shard count must be a power of 2; it will panic if not.
// Higher shard counts will improve concurrency but consume more memory.
func New[K comparable, V any](shardCount uint64, hasher func(K) uint64) *Map[K, V] {
	if shardCount == 0 || shardCount&(shardCount-1) != 0 {
		panic(fmt.Sprintf("shard count %d is not a power of 2", shardCount))
	}
	m := &Map[K, V]{
		shards: make([]shard[K, V], shardCount),
		mask:   shardCount - 1,
		hasher: hasher,
	}
	for i := range m.shards {
		m.shards[i].m = map[K]awaitableValue[V]{}
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return &m.shards[m.hasher(key)&m.mask]
}

// Add adds the new item to the map only if the key is absent.
// It returns true if the item was inserted, false if it already existed.
func (m *Map[K, V]) Add(key K, val V) bool {
	return m.shardFor(key).add(key, val)
}

// Set is the equivalent of `map[key] = val`; it always overwrites any value
// that was there before (but wakes up any goroutine already waiting on it).
func (m *Map[K, V]) Set(key K, val V) bool {
	return m.shardFor(key).set(key, val)
}

// Get returns the value for key, or the zero value if it isn't present.
// It never blocks; use GetOrWait if the caller needs to wait for insertion.
func (m *Map[K, V]) Get(key K) V {
	return m.shardFor(key).get(key)
}

// GetOrWait returns the current value for key and, if it isn't present yet,
// a channel that is closed once some goroutine calls Add or Set for it.
// Exactly one of a nil wait channel (value present) or a non-nil one (value
// still pending) is returned. first reports whether this call is the one
// that created the waiting slot, so a single goroutine can take
// responsibility for producing the value.
func (m *Map[K, V]) GetOrWait(key K) (val V, wait chan struct{}, first bool) {
	return m.shardFor(key).getOrWait(key)
}

// Values returns a slice of every value currently present (not pending) in
// the map. No particular ordering or snapshot consistency is guaranteed.
func (m *Map[K, V]) Values() []V {
	ret := make([]V, 0)
	for i := range m.shards {
		ret = append(ret, m.shards[i].values()...)
	}
	return ret
}

// An awaitableValue represents a value in the map and, while it is still
// pending, a channel for waiters to block on.
type awaitableValue[V any] struct {
	Val  V
	Wait chan struct{}
}

// A shard is one of the individual shards of a map.
type shard[K comparable, V any] struct {
	m map[K]awaitableValue[V]
	l sync.Mutex
}

func (s *shard[K, V]) add(key K, val V) bool {
	s.l.Lock()
	defer s.l.Unlock()
	existing, ok := s.m[key]
	if ok && existing.Wait == nil {
		return false // already has a real value
	}
	s.m[key] = awaitableValue[V]{Val: val}
	if ok && existing.Wait != nil {
		close(existing.Wait)
	}
	return true
}

func (s *shard[K, V]) set(key K, val V) bool {
	s.l.Lock()
	defer s.l.Unlock()
	existing, ok := s.m[key]
	s.m[key] = awaitableValue[V]{Val: val}
	if ok && existing.Wait != nil {
		close(existing.Wait)
	}
	return !ok || existing.Wait != nil
}

func (s *shard[K, V]) get(key K) V {
	s.l.Lock()
	defer s.l.Unlock()
	return s.m[key].Val
}

func (s *shard[K, V]) getOrWait(key K) (val V, wait chan struct{}, first bool) {
	s.l.Lock()
	defer s.l.Unlock()
	if v, ok := s.m[key]; ok {
		return v.Val, v.Wait, false
	}
	ch := make(chan struct{})
	s.m[key] = awaitableValue[V]{Wait: ch}
	return val, ch, true
}

func (s *shard[K, V]) values() []V {
	s.l.Lock()
	defer s.l.Unlock()
	out := make([]V, 0, len(s.m))
	for _, v := range s.m {
		if v.Wait == nil {
			out = append(out, v.Val)
		}
	}
	return out
}

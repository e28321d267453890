package scope

import (
	"sync"
	"unsafe"

	"dario.cat/mergo"

	"github.com/build2/build2-sub005/src/value"
)

// composedValue is the union-shaped intermediate result of stem + override
// composition: a stem value plus the ordered prefix/suffix fragments folded
// onto it. Caching this (rather than only the final *value.Value) lets a
// later lookup that only adds a new __prefix/__suffix merge its fragment
// onto the existing struct instead of recomputing the whole chain.
type composedValue struct {
	Stem     *value.Value
	Prefixes []value.Names
	Suffixes []value.Names
}

// cacheEntry memoizes one variable's composed value against the override
// sequence number current when it was built, so a lookup that hasn't seen a
// new override registered since can reuse it untouched.
type cacheEntry struct {
	asOf int
	composed composedValue
	val      *value.Value
}

// Cache memoizes Effective() results, sharded by a fixed array of mutexes
// the way build2's context.hxx shards its global_mutexes.variable_cache --
// translated here to plain sync.Mutex/map pairs sized once at context
// construction (src/context.NewContext picks the shard count) rather than
// build2's spinlock array, since phase ownership itself is enforced by
// src/context and this cache only needs to avoid one hot global lock.
type Cache struct {
	shards []cacheShard
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[*value.Variable]cacheEntry
}

// NewCache builds a Cache with the given shard count (rounded up to at
// least 1).
func NewCache(shardCount int) *Cache {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]cacheShard, shardCount)
	for i := range shards {
		shards[i].entries = map[*value.Variable]cacheEntry{}
	}
	return &Cache{shards: shards}
}

func (c *Cache) shard(va *value.Variable) *cacheShard {
	h := uintptr(unsafe.Pointer(va))
	return &c.shards[h%uintptr(len(c.shards))]
}

// Effective composes local (the value assigned at the scope owning va, or
// nil if none was ever assigned there) with va's registered __override,
// __prefix and __suffix aliases, in registration order (spec.md §3, §4.1):
// the most recently registered __override replaces the stem outright, and
// every __prefix/__suffix registered after that stem's sequence number is
// then folded in via the variable's own VTable.Prepend/Append.
//
// cache may be nil to always recompute.
func Effective(cache *Cache, va *value.Variable, local *value.Value) (*value.Value, error) {
	stemSeq := -1
	if stem := va.MostRecentOverride(); stem != nil {
		stemSeq = stem.Seq
	}
	prefixes, suffixes := va.PrefixSuffixAfter(stemSeq)
	fresh := composedValue{Prefixes: namesOf(prefixes), Suffixes: namesOf(suffixes)}
	if stem := va.MostRecentOverride(); stem != nil {
		fresh.Stem = stem.Value
	}

	// Only the override-derived part of the composition (stem + prefixes/
	// suffixes registered after it) is stable enough to key on va's override
	// sequence number alone. With no __override, the result is derived from
	// local, which can be reassigned at load time without bumping any
	// override's Seq -- caching on (va, latestSeq) alone would then return a
	// value composed from a stale local. Skip the cache entirely in that
	// case rather than risk serving it.
	if cache == nil || fresh.Stem == nil {
		return resolve(va, fresh, local)
	}

	shard := cache.shard(va)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	latest := latestSeq(va)
	if e, ok := shard.entries[va]; ok && e.asOf == latest {
		return e.val, nil
	}

	// Merge the freshly recomputed fragment set onto a zero-value struct:
	// mergo fills the Stem field (nil in a zero composedValue) and both
	// fragment slices (also nil) straight from fresh, giving us the same
	// "only overwrite zero destination fields" composition the stem/override
	// relationship itself follows, without a hand-rolled field-by-field copy.
	var merged composedValue
	if err := mergo.Merge(&merged, fresh); err != nil {
		return nil, err
	}

	eff, err := resolve(va, merged, local)
	if err != nil {
		return nil, err
	}
	shard.entries[va] = cacheEntry{asOf: latest, composed: merged, val: eff}
	return eff, nil
}

func namesOf(overrides []*value.Override) []value.Names {
	out := make([]value.Names, len(overrides))
	for i, o := range overrides {
		out[i] = o.Value.ExtractNames()
	}
	return out
}

// latestSeq is the sequence number of the most recently registered override
// on va (of any kind), or -1 if it has none -- used as the cache's
// invalidation key, since any new override registration bumps it.
func latestSeq(va *value.Variable) int {
	best := -1
	for _, o := range va.Overrides {
		if o.Seq > best {
			best = o.Seq
		}
	}
	return best
}

// resolve turns a composedValue into the actual effective *value.Value by
// folding its prefixes/suffixes onto the stem (or onto local/a fresh null
// value when there is no __override replacement) via the variable's own
// VTable.Prepend/Append.
func resolve(va *value.Variable, c composedValue, local *value.Value) (*value.Value, error) {
	var eff *value.Value
	switch {
	case c.Stem != nil:
		eff = c.Stem.Copy()
	case local != nil:
		eff = local.Copy()
	default:
		eff = value.NewNull(va.Type)
	}
	for _, p := range c.Prefixes {
		if err := eff.Prepend(p); err != nil {
			return nil, err
		}
	}
	for _, s := range c.Suffixes {
		if err := eff.Append(s); err != nil {
			return nil, err
		}
	}
	return eff, nil
}

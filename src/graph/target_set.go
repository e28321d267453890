package graph

import (
	"fmt"
	"sync"

	"github.com/build2/build2-sub005/src/cmap"
)

// Set is the process-wide deduplicated target set (spec.md §4.3), sharded
// and awaitable the same way cmap.Map is: a goroutine that wins the race to
// insert a key runs the factory, and every other goroutine asking for the
// same key blocks until that target exists rather than racing to create a
// duplicate.
type Set struct {
	m *cmap.Map[Key, *Target]

	// baseMu guards base, the secondary index spec.md §4.3's insert algorithm
	// needs: cmap.Map's own key includes Ext, so two requests differing only
	// in extension land on different cmap shards/keys and never meet each
	// other there. base tracks, per (type, out dir, src dir, name), the one
	// baseEntry currently on file for it, so a second request can detect an
	// extension mismatch or promote an extension-absent entry to a concrete
	// one. The entire identity-reconciliation decision (first-request-wins,
	// match, promote, or mismatch) is made while holding baseMu so a second
	// request can never observe a half-finished reconciliation and create a
	// second *Target for what should be one identity.
	baseMu sync.Mutex
	base   map[baseKey]*baseEntry
}

// baseEntry is the single record an identity's first request creates: key is
// the identity's current (possibly later promoted) Key, and ready is closed
// once target has been populated by the factory call that request runs.
// Fields other than key are only ever written by that one original request,
// after which readers synchronize via ready rather than baseMu -- a promoted
// key is still only ever mutated under baseMu, so concurrent promotions
// serialize correctly even while the original factory call is still running.
type baseEntry struct {
	key    Key
	target *Target
	ready  chan struct{}
}

// baseKey is a target's identity without its extension -- the part of Key
// that two requests for "the same target" must agree on exactly, with Ext
// handled separately by the absent/concrete-match/mismatch rules below.
type baseKey struct {
	typeName string
	outDir   string
	srcDir   string
	name     string
}

func toBaseKey(k Key) baseKey {
	typeName := ""
	if k.Type != nil {
		typeName = k.Type.Name
	}
	return baseKey{typeName: typeName, outDir: k.OutDir, srcDir: k.SrcDir, name: k.Name}
}

// extAbsent reports whether k's extension was left unspecified (as opposed
// to explicitly declared absent via NoExt, which is a concrete state of its
// own -- spec.md §6's "foo." form).
func extAbsent(k Key) bool { return k.Ext == "" && !k.NoExt }

func extLabel(k Key) string {
	if k.NoExt {
		return "(none)"
	}
	if k.Ext == "" {
		return "(unspecified)"
	}
	return k.Ext
}

// ExtensionMismatchError reports that two requests for what would otherwise
// be the same target (matching type, out dir, src dir, name) named two
// different concrete extensions -- spec.md §4.3: "a mismatch between two
// concrete extensions is a hard error (distinct targets)".
type ExtensionMismatchError struct {
	Key      Key
	Existing string
	Wanted   string
}

func (e *ExtensionMismatchError) Error() string {
	return fmt.Sprintf("%s: extension mismatch: already registered with extension %s, now requested with %s",
		e.Key, e.Existing, e.Wanted)
}

// NewSet constructs an empty target set.
func NewSet() *Set {
	return &Set{m: cmap.New[Key, *Target](cmap.DefaultShardCount, hashKey), base: map[baseKey]*baseEntry{}}
}

func hashKey(k Key) uint64 {
	typeName := ""
	if k.Type != nil {
		typeName = k.Type.Name
	}
	noExt := "0"
	if k.NoExt {
		noExt = "1"
	}
	return cmap.XXHashes(typeName, k.OutDir, k.SrcDir, k.Name, k.Ext, noExt)
}

// resolve promotes a key with an unspecified extension ("foo...") to the
// type's default extension before it is used to address the set, so that a
// lookup for the unspecified form and one for the type's natural extension
// land on the same target instead of silently creating two (spec.md §6,
// "extension-unspecified keys resolve against the type's default").
func resolve(key Key) Key {
	if key.Ext == "" && !key.NoExt && key.Type != nil && key.Type.DefaultExtension != nil {
		if def := key.Type.DefaultExtension(); def != "" {
			key.Ext = def
		}
	}
	return key
}

// InsertOrGet returns the existing target for key at the given declaration
// level if present, otherwise builds one with factory and inserts it.
// Exactly one caller racing on the same identity runs factory; everyone else
// blocks until it's done and then retrieves the result. A target found
// already present has its declaration level upgraded if level is more
// specific than the one it was first inserted at (spec.md §4.3, a target
// first seen as an implicit dependency and later declared explicitly keeps
// the explicit declaration). The inserted bool reports whether this call is
// the one that ran factory. An error is returned -- and no target created or
// returned -- when key's extension conflicts with one already on file for
// the same (type, out dir, src dir, name) (spec.md §4.3).
//
// The whole identity-reconciliation decision (spec.md §4.3's three-way
// merge: first request wins, a later absent-extension request matches
// whatever's on file, a later concrete request promotes a recorded-absent
// entry or is compared against a recorded-concrete one) runs under baseMu so
// two concurrent requests for the same identity, differing only in
// extension, can never each believe they're first and create two distinct
// *Target values.
func (s *Set) InsertOrGet(key Key, level DeclLevel, factory func() *Target) (*Target, bool, error) {
	key = resolve(key)
	bk := toBaseKey(key)
	reqAbsent := extAbsent(key)

	s.baseMu.Lock()
	entry, ok := s.base[bk]
	if !ok {
		entry = &baseEntry{key: key, ready: make(chan struct{})}
		s.base[bk] = entry
		s.baseMu.Unlock()

		t := factory()
		t.rekey(key)
		s.m.Set(key, t)
		entry.target = t
		close(entry.ready)
		return t, true, nil
	}

	storedAbsent := extAbsent(entry.key)
	var finalKey Key
	switch {
	case storedAbsent && reqAbsent:
		finalKey = entry.key
	case !storedAbsent && reqAbsent:
		finalKey = entry.key
	case storedAbsent && !reqAbsent:
		// Promote the recorded entry to the concrete extension: the target
		// (once its original factory call finishes) moves under the new key
		// too. cmap.Map has no delete, so the old absent-extension entry is
		// left in place as a harmless stale duplicate pointing at the same
		// *Target. Mutating entry.key here, still under baseMu, is what lets
		// a second, concurrent promotion request (or a same-identity
		// concrete request) see the promotion has already happened instead
		// of racing to decide independently.
		entry.key = key
		finalKey = key
	default: // both concrete
		if entry.key.Ext != key.Ext || entry.key.NoExt != key.NoExt {
			s.baseMu.Unlock()
			return nil, false, &ExtensionMismatchError{Key: key, Existing: extLabel(entry.key), Wanted: extLabel(key)}
		}
		finalKey = entry.key
	}
	s.baseMu.Unlock()

	<-entry.ready
	t := entry.target
	if storedAbsent && !reqAbsent {
		// Re-key the now-existing target onto the promoted identity; a
		// no-op in effect if another concurrent promoter already did this
		// for the same finalKey.
		t.rekey(finalKey)
		s.m.Set(finalKey, t)
	}
	t.UpgradeDeclLevel(level)
	return t, false, nil
}

// Get returns the target for key if it's already present, without blocking
// and without inserting. Unlike InsertOrGet this never promotes or errors on
// an extension mismatch -- spec.md §4.3's find(key) "is the read-only
// variant; it never creates or promotes" -- so a concrete-extension lookup
// against a base identity only ever recorded under a different concrete
// extension simply reports not-found.
func (s *Set) Get(key Key) (*Target, bool) {
	key = resolve(key)

	s.baseMu.Lock()
	entry, ok := s.base[toBaseKey(key)]
	var stored Key
	if ok {
		stored = entry.key
	}
	s.baseMu.Unlock()

	if ok && (extAbsent(key) || (stored.Ext == key.Ext && stored.NoExt == key.NoExt) || extAbsent(stored)) {
		key = stored
	}

	t := s.m.Get(key)
	return t, t != nil
}

// All returns every target currently in the set. No ordering is guaranteed.
func (s *Set) All() []*Target {
	return s.m.Values()
}

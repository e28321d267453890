package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetInsertOrGetReturnsSameTargetForSameKey(t *testing.T) {
	s := NewSet()
	tt := keyTestType("graph-test-set-same")
	key := Key{Type: tt, Name: "foo"}

	calls := 0
	factory := func() *Target {
		calls++
		return NewTarget(key, DeclExplicit)
	}

	t1, inserted1, err1 := s.InsertOrGet(key, DeclExplicit, factory)
	t2, inserted2, err2 := s.InsertOrGet(key, DeclExplicit, factory)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Same(t, t1, t2)
	assert.True(t, inserted1)
	assert.False(t, inserted2)
	assert.Equal(t, 1, calls)
}

func TestSetInsertOrGetUpgradesDeclLevelOfExistingTarget(t *testing.T) {
	s := NewSet()
	tt := keyTestType("graph-test-set-upgrade")
	key := Key{Type: tt, Name: "foo"}

	tgt, _, err := s.InsertOrGet(key, DeclAdhoc, func() *Target { return NewTarget(key, DeclAdhoc) })
	require.NoError(t, err)
	assert.Equal(t, DeclAdhoc, tgt.DeclLevel)

	again, inserted, err := s.InsertOrGet(key, DeclExplicit, func() *Target {
		t.Fatal("factory must not run for an already-present key")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Same(t, tgt, again)
	assert.Equal(t, DeclExplicit, tgt.DeclLevel)
}

func TestSetInsertOrGetOnlyOneWinnerUnderConcurrency(t *testing.T) {
	s := NewSet()
	tt := keyTestType("graph-test-set-concurrent")
	key := Key{Type: tt, Name: "foo"}

	const n = 32
	results := make([]*Target, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], _, _ = s.InsertOrGet(key, DeclExplicit, func() *Target {
				return NewTarget(key, DeclExplicit)
			})
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestSetGetResolvesUnspecifiedExtensionAgainstDefault(t *testing.T) {
	s := NewSet()
	tt := &Type{
		Name:             "graph-test-set-default-ext",
		Factory:          func(k Key) *Target { return NewTarget(k, DeclExplicit) },
		DefaultExtension: func() string { return "cc" },
	}
	RegisterType(tt)

	withDefault := Key{Type: tt, Name: "foo", Ext: "cc"}
	unspecified := Key{Type: tt, Name: "foo"}

	tgt, inserted, err := s.InsertOrGet(withDefault, DeclExplicit, func() *Target { return NewTarget(withDefault, DeclExplicit) })
	require.NoError(t, err)
	require.True(t, inserted)

	found, ok := s.Get(unspecified)
	require.True(t, ok, "a key with an unspecified extension must resolve to the type's default")
	assert.Same(t, tgt, found)
}

func TestSetGetMissingReturnsFalse(t *testing.T) {
	s := NewSet()
	tt := keyTestType("graph-test-set-missing")
	_, ok := s.Get(Key{Type: tt, Name: "nope"})
	assert.False(t, ok)
}

func TestSetAllReturnsEveryInsertedTarget(t *testing.T) {
	s := NewSet()
	tt := keyTestType("graph-test-set-all")
	k1 := Key{Type: tt, Name: "a"}
	k2 := Key{Type: tt, Name: "b"}
	t1, _, err := s.InsertOrGet(k1, DeclExplicit, func() *Target { return NewTarget(k1, DeclExplicit) })
	require.NoError(t, err)
	t2, _, err := s.InsertOrGet(k2, DeclExplicit, func() *Target { return NewTarget(k2, DeclExplicit) })
	require.NoError(t, err)

	all := s.All()
	assert.ElementsMatch(t, []*Target{t1, t2}, all)
}

func TestSetInsertOrGetPromotesAbsentExtensionToConcrete(t *testing.T) {
	s := NewSet()
	tt := keyTestType("graph-test-set-promote")
	absent := Key{Type: tt, Name: "foo"}
	concrete := Key{Type: tt, Name: "foo", Ext: "h"}

	tgt, inserted, err := s.InsertOrGet(absent, DeclImplicit, func() *Target { return NewTarget(absent, DeclImplicit) })
	require.NoError(t, err)
	require.True(t, inserted)

	promoted, inserted, err := s.InsertOrGet(concrete, DeclExplicit, func() *Target {
		t.Fatal("factory must not run: the absent-extension target should be promoted, not duplicated")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Same(t, tgt, promoted)
	assert.Equal(t, concrete, promoted.Key)

	found, ok := s.Get(concrete)
	require.True(t, ok)
	assert.Same(t, tgt, found)
}

func TestSetInsertOrGetConcreteExtensionMismatchIsHardError(t *testing.T) {
	s := NewSet()
	tt := keyTestType("graph-test-set-mismatch")
	hKey := Key{Type: tt, Name: "foo", Ext: "h"}
	hppKey := Key{Type: tt, Name: "foo", Ext: "hpp"}

	_, inserted, err := s.InsertOrGet(hKey, DeclExplicit, func() *Target { return NewTarget(hKey, DeclExplicit) })
	require.NoError(t, err)
	require.True(t, inserted)

	_, _, err = s.InsertOrGet(hppKey, DeclExplicit, func() *Target {
		t.Fatal("factory must not run when the extension conflicts")
		return nil
	})
	require.Error(t, err)
	var mismatch *ExtensionMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestSetGetMatchesWithoutPromoting(t *testing.T) {
	s := NewSet()
	tt := keyTestType("graph-test-set-get-readonly")
	absent := Key{Type: tt, Name: "foo"}

	tgt, inserted, err := s.InsertOrGet(absent, DeclImplicit, func() *Target { return NewTarget(absent, DeclImplicit) })
	require.NoError(t, err)
	require.True(t, inserted)

	hKey := Key{Type: tt, Name: "foo", Ext: "h"}
	found, ok := s.Get(hKey)
	require.True(t, ok, "a concrete request still matches an absent-extension entry on file")
	assert.Same(t, tgt, found)
	assert.Equal(t, absent, tgt.Key, "Get must never promote: the target's own key stays unchanged")
}

// TestSetInsertOrGetPromotionRaceNeverDuplicates fires an absent-extension
// request and several concrete-extension requests for the same identity
// concurrently, checking that exactly one *Target results no matter which
// request's factory happens to run first -- the reconciliation decision
// (spec.md §4.3) must be atomic with respect to the cmap insert, not just
// with respect to the base-key bookkeeping.
func TestSetInsertOrGetPromotionRaceNeverDuplicates(t *testing.T) {
	s := NewSet()
	tt := keyTestType("graph-test-set-promote-race")
	absent := Key{Type: tt, Name: "foo"}
	concrete := Key{Type: tt, Name: "foo", Ext: "h"}

	const n = 32
	results := make([]*Target, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			key := absent
			if i%2 == 0 {
				key = concrete
			}
			tgt, _, err := s.InsertOrGet(key, DeclExplicit, func() *Target { return NewTarget(key, DeclExplicit) })
			require.NoError(t, err)
			results[i] = tgt
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i], "every concurrent request for the same identity must resolve to one target")
	}
	assert.Equal(t, concrete, results[0].Key, "the shared target must end up keyed under the promoted concrete extension")
}

func TestSetGetConcreteMismatchReturnsNotFound(t *testing.T) {
	s := NewSet()
	tt := keyTestType("graph-test-set-get-mismatch")
	hKey := Key{Type: tt, Name: "foo", Ext: "h"}
	hppKey := Key{Type: tt, Name: "foo", Ext: "hpp"}

	_, inserted, err := s.InsertOrGet(hKey, DeclExplicit, func() *Target { return NewTarget(hKey, DeclExplicit) })
	require.NoError(t, err)
	require.True(t, inserted)

	found, ok := s.Get(hppKey)
	assert.False(t, ok)
	assert.Nil(t, found)
}

package dyndep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/build2/build2-sub005/src/graph"
	"github.com/build2/build2-sub005/src/match"
)

func dyndepTestType(name string) *graph.Type {
	tt := &graph.Type{Name: name, Factory: func(k graph.Key) *graph.Target { return graph.NewTarget(k, graph.DeclImplicit) }}
	graph.RegisterType(tt)
	return tt
}

type fakeEngine struct {
	matches map[*graph.Target]bool
	updates map[*graph.Target]bool
	err     error
}

func (f *fakeEngine) TryMatchSync(a match.Action, t *graph.Target) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.matches[t], nil
}

func (f *fakeEngine) Update(a match.Action, t *graph.Target, since time.Time) (bool, error) {
	return f.updates[t], nil
}

type fakeNoop struct{ noop map[*graph.Target]bool }

func (f fakeNoop) IsNoop(t *graph.Target) bool { return f.noop[t] }

func TestInjectFileRequiredButUnmatchedFails(t *testing.T) {
	tt := dyndepTestType("dd-file-1")
	self := graph.NewTarget(graph.Key{Type: tt, Name: "self"}, graph.DeclExplicit)
	header := graph.NewTarget(graph.Key{Type: tt, Name: "header"}, graph.DeclImplicit)

	eng := &fakeEngine{matches: map[*graph.Target]bool{}}
	_, err := InjectFile(eng, "header", match.Action{}, self, header, time.Time{}, true, false)
	require.Error(t, err)
	assert.Empty(t, self.Prerequisites())
}

func TestInjectFileOptionalUnmatchedNoError(t *testing.T) {
	tt := dyndepTestType("dd-file-2")
	self := graph.NewTarget(graph.Key{Type: tt, Name: "self"}, graph.DeclExplicit)
	header := graph.NewTarget(graph.Key{Type: tt, Name: "header"}, graph.DeclImplicit)

	eng := &fakeEngine{matches: map[*graph.Target]bool{}}
	_, err := InjectFile(eng, "header", match.Action{}, self, header, time.Time{}, false, false)
	require.NoError(t, err)
	assert.Empty(t, self.Prerequisites())
}

func TestInjectFileMatchedAddsPrerequisite(t *testing.T) {
	tt := dyndepTestType("dd-file-3")
	self := graph.NewTarget(graph.Key{Type: tt, Name: "self"}, graph.DeclExplicit)
	header := graph.NewTarget(graph.Key{Type: tt, Name: "header"}, graph.DeclImplicit)

	eng := &fakeEngine{
		matches: map[*graph.Target]bool{header: true},
		updates: map[*graph.Target]bool{header: true},
	}
	updated, err := InjectFile(eng, "header", match.Action{}, self, header, time.Time{}, true, false)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, []*graph.Target{header}, self.Prerequisites())
}

func TestInjectExistingFileRejectsNonNoopUnlessReachable(t *testing.T) {
	tt := dyndepTestType("dd-existing-1")
	self := graph.NewTarget(graph.Key{Type: tt, Name: "self"}, graph.DeclExplicit)
	header := graph.NewTarget(graph.Key{Type: tt, Name: "header"}, graph.DeclImplicit)

	eng := &fakeEngine{matches: map[*graph.Target]bool{header: true}}
	noop := fakeNoop{noop: map[*graph.Target]bool{}}

	_, err := InjectExistingFile(eng, noop, "header", match.Action{}, self, header, time.Time{}, true, false)
	require.Error(t, err)
}

func TestInjectExistingFileAllowsReachableNonNoop(t *testing.T) {
	tt := dyndepTestType("dd-existing-2")
	self := graph.NewTarget(graph.Key{Type: tt, Name: "self"}, graph.DeclExplicit)
	mid := graph.NewTarget(graph.Key{Type: tt, Name: "mid"}, graph.DeclImplicit)
	header := graph.NewTarget(graph.Key{Type: tt, Name: "header"}, graph.DeclImplicit)
	self.AddPrerequisite(mid, false)
	mid.AddPrerequisite(header, true)

	eng := &fakeEngine{
		matches: map[*graph.Target]bool{header: true},
		updates: map[*graph.Target]bool{header: true},
	}
	noop := fakeNoop{noop: map[*graph.Target]bool{}}

	updated, err := InjectExistingFile(eng, noop, "header", match.Action{}, self, header, time.Time{}, true, false)
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestVerifyExistingFileExplicitUnmatchedFails(t *testing.T) {
	tt := dyndepTestType("dd-verify-1")
	self := graph.NewTarget(graph.Key{Type: tt, Name: "self"}, graph.DeclExplicit)
	header := graph.NewTarget(graph.Key{Type: tt, Name: "header"}, graph.DeclExplicit)
	noop := fakeNoop{noop: map[*graph.Target]bool{}}

	err := VerifyExistingFile(noop, "header", self, header, false)
	require.Error(t, err)
}

func TestVerifyExistingFileImplicitUnmatchedOK(t *testing.T) {
	tt := dyndepTestType("dd-verify-2")
	self := graph.NewTarget(graph.Key{Type: tt, Name: "self"}, graph.DeclExplicit)
	header := graph.NewTarget(graph.Key{Type: tt, Name: "header"}, graph.DeclImplicit)
	noop := fakeNoop{noop: map[*graph.Target]bool{}}

	err := VerifyExistingFile(noop, "header", self, header, false)
	require.NoError(t, err)
}

func TestInjectGroupMemberCreatesAndLinks(t *testing.T) {
	tt := dyndepTestType("dd-group-1")
	set := graph.NewSet()
	primary := graph.NewTarget(graph.Key{Type: tt, Name: "primary"}, graph.DeclExplicit)
	g := graph.NewGroup(primary)

	key := graph.Key{Type: tt, Name: "member"}
	m, created, err := InjectGroupMember(set, g, key, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, g.IsMember(m))

	m2, created2, err2 := InjectGroupMember(set, g, key, nil)
	require.NoError(t, err2)
	assert.False(t, created2)
	assert.Same(t, m, m2)
}

func TestInjectGroupMemberConflictingGroupFails(t *testing.T) {
	tt := dyndepTestType("dd-group-2")
	set := graph.NewSet()
	primary1 := graph.NewTarget(graph.Key{Type: tt, Name: "p1"}, graph.DeclExplicit)
	primary2 := graph.NewTarget(graph.Key{Type: tt, Name: "p2"}, graph.DeclExplicit)
	g1 := graph.NewGroup(primary1)
	g2 := graph.NewGroup(primary2)

	key := graph.Key{Type: tt, Name: "shared-member"}
	_, _, err := InjectGroupMember(set, g1, key, nil)
	require.NoError(t, err)

	_, _, err = InjectGroupMember(set, g2, key, nil)
	assert.Error(t, err)
}

func TestInjectAdhocGroupMemberRejectsExplicitTarget(t *testing.T) {
	tt := dyndepTestType("dd-adhoc-1")
	set := graph.NewSet()
	primary := graph.NewTarget(graph.Key{Type: tt, Name: "primary"}, graph.DeclExplicit)

	key := graph.Key{Type: tt, Name: "explicit-member"}
	existing, _, err := set.InsertOrGet(key, graph.DeclExplicit, func() *graph.Target { return tt.Factory(key) })
	require.NoError(t, err)
	_ = existing

	_, _, err = InjectAdhocGroupMember(set, primary, key)
	assert.Error(t, err)
}

func TestPrefixMapAppendAndSupRange(t *testing.T) {
	m := NewPrefixMap()
	m.Append("/tmp/foo", "/tmp")

	vals := m.SupRange("foo")
	require.NotEmpty(t, vals)
	assert.Equal(t, "/tmp", vals[0].Directory)
}

func TestPrefixMapPrefixlessKeepsAllEntries(t *testing.T) {
	m := NewPrefixMap()
	m.Append("/a/b", "/a")
	m.Append("/x/y/z", "/x/y")

	vals := m.SupRange("")
	assert.True(t, len(vals) >= 2)
}

func TestSrcOutMapFindSup(t *testing.T) {
	m := NewSrcOutMap()
	assert.True(t, m.Empty())
	m.Add("/proj/src", "/proj/out")
	assert.False(t, m.Empty())

	prefix, out, ok := m.FindSup("/proj/src/pkg/file.go")
	require.True(t, ok)
	assert.Equal(t, "/proj/src", prefix)
	assert.Equal(t, "/proj/out", out)

	_, _, ok = m.FindSup("/other/file.go")
	assert.False(t, ok)
}

func TestUpdateDuringMatchDelegatesToEngine(t *testing.T) {
	tt := dyndepTestType("dd-update-1")
	header := graph.NewTarget(graph.Key{Type: tt, Name: "header"}, graph.DeclImplicit)
	eng := &fakeEngine{updates: map[*graph.Target]bool{header: true}}

	updated, err := UpdateDuringMatch(eng, match.Action{}, header, time.Time{})
	require.NoError(t, err)
	assert.True(t, updated)
}

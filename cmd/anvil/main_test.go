package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/build2/build2-sub005/src/context"
	"github.com/build2/build2-sub005/src/graph"
	"github.com/build2/build2-sub005/src/value"
)

func TestApplyOverrideInsertsAndAddsOverride(t *testing.T) {
	pool := value.NewPool()
	o := value.CLIOverride{Name: "cxx.std", Kind: value.OverrideReplace}
	require.NoError(t, applyOverride(o, "c++20", pool))

	va, ok := pool.Lookup("cxx.std")
	require.True(t, ok)
	require.Len(t, va.Overrides, 1)
	assert.Equal(t, value.OverrideReplace, va.Overrides[0].Kind)
}

func TestApplyOverrideRejectsNonOverridable(t *testing.T) {
	pool := value.NewPool()
	pool.AddPattern(value.Pattern{Prefix: "fixed.", Overridable: false})
	o := value.CLIOverride{Name: "fixed.thing", Kind: value.OverrideReplace}
	err := applyOverride(o, "nope", pool)
	assert.Error(t, err)
}

func TestPoolForResolvesByVisibility(t *testing.T) {
	ctx := context.NewContext()
	proj := ctx.Scopes.InsertProject(ctx.Global, "/out", "/src")

	assert.Same(t, ctx.Global.Vars, poolFor(ctx, proj, value.CLIOverride{Visibility: value.VisibilityGlobal}))
	assert.Same(t, proj.Vars, poolFor(ctx, proj, value.CLIOverride{Visibility: value.VisibilityProject}))
	assert.Same(t, proj.Vars, poolFor(ctx, proj, value.CLIOverride{Visibility: value.VisibilityScope}))
}

func TestPoolForDirectoryQualifiedFallsBackToProject(t *testing.T) {
	ctx := context.NewContext()
	proj := ctx.Scopes.InsertProject(ctx.Global, "/out3", "/src3")

	pool := poolFor(ctx, proj, value.CLIOverride{Visibility: value.VisibilityScope, Directory: "/out3/nonexistent"})
	assert.Same(t, proj.Vars, pool)
}

func TestPoolForDirectoryQualifiedFindsSubScope(t *testing.T) {
	ctx := context.NewContext()
	proj := ctx.Scopes.InsertProject(ctx.Global, "/out4", "/src4")
	sub := ctx.Scopes.InsertOut(proj, "/out4/sub", "/src4/sub")

	pool := poolFor(ctx, proj, value.CLIOverride{Visibility: value.VisibilityScope, Directory: "/out4/sub"})
	assert.Same(t, sub.Vars, pool)
}

func TestSuggestTargetTypeAddsHintForCloseTypo(t *testing.T) {
	tt := &graph.Type{Name: "anvil-test-cxxlib", Factory: func(k graph.Key) *graph.Target { return graph.NewTarget(k, graph.DeclExplicit) }}
	graph.RegisterType(tt)

	err := suggestTargetType("anvil-test-cxxlb{foo}", assertErr("unknown target type"))
	assert.Contains(t, err.Error(), "unknown target type")
	assert.Contains(t, err.Error(), "anvil-test-cxxlib")
}

func TestSuggestTargetTypeLeavesCauseUntouchedWithNoCandidate(t *testing.T) {
	err := suggestTargetType("zzzzzzzzzzzzzzzzzzzzz{foo}", assertErr("parse failure"))
	assert.Equal(t, "parse failure", err.Error())
}

type stringErr string

func (e stringErr) Error() string { return string(e) }

func assertErr(msg string) error { return stringErr(msg) }

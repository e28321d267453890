package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTargetStartsTouched(t *testing.T) {
	tt := keyTestType("graph-test-target-new")
	tgt := NewTarget(Key{Type: tt, Name: "foo"}, DeclExplicit)
	assert.Equal(t, StateTouched, tgt.OpState(0, 1))
	assert.Equal(t, DeclExplicit, tgt.DeclLevel)
}

func TestAdvanceOpStateSingleWinnerOnCAS(t *testing.T) {
	tgt := NewTarget(Key{Type: keyTestType("graph-test-target-cas"), Name: "foo"}, DeclExplicit)

	require.True(t, tgt.AdvanceOpState(0, 1, StateTouched, StateTried))
	assert.False(t, tgt.AdvanceOpState(0, 1, StateTouched, StateTried), "second CAS from the same before-state must lose")
	assert.Equal(t, StateTried, tgt.OpState(0, 1))
}

func TestOpStateReportsTouchedAcrossGenerationMismatch(t *testing.T) {
	tgt := NewTarget(Key{Type: keyTestType("graph-test-target-gen"), Name: "foo"}, DeclExplicit)
	require.True(t, tgt.AdvanceOpState(0, 1, StateTouched, StateMatched))
	assert.Equal(t, StateMatched, tgt.OpState(0, 1))
	assert.Equal(t, StateTouched, tgt.OpState(0, 2), "a generation bump invalidates stale state")
}

func TestResetOpStateInvalidatesOldGenerationCAS(t *testing.T) {
	tgt := NewTarget(Key{Type: keyTestType("graph-test-target-reset"), Name: "foo"}, DeclExplicit)
	require.True(t, tgt.AdvanceOpState(0, 1, StateTouched, StateMatched))
	tgt.ResetOpState(0, 2)
	assert.Equal(t, StateTouched, tgt.OpState(0, 2))
	assert.False(t, tgt.AdvanceOpState(0, 1, StateMatched, StateApplied), "stale generation must not be able to advance state")
}

func TestAddPrerequisiteDeduplicates(t *testing.T) {
	tt := keyTestType("graph-test-target-prereq")
	tgt := NewTarget(Key{Type: tt, Name: "foo"}, DeclExplicit)
	dep := NewTarget(Key{Type: tt, Name: "bar"}, DeclExplicit)

	tgt.AddPrerequisite(dep, false)
	tgt.AddPrerequisite(dep, false)
	assert.Equal(t, 1, tgt.PrerequisiteCount())
	assert.Equal(t, []*Target{dep}, tgt.Prerequisites())
}

func TestAddPrerequisiteTracksAdhocFlag(t *testing.T) {
	tt := keyTestType("graph-test-target-prereq-adhoc")
	tgt := NewTarget(Key{Type: tt, Name: "foo"}, DeclExplicit)
	static := NewTarget(Key{Type: tt, Name: "bar"}, DeclExplicit)
	dynamic := NewTarget(Key{Type: tt, Name: "baz"}, DeclExplicit)

	tgt.AddPrerequisite(static, false)
	tgt.AddPrerequisite(dynamic, true)

	assert.False(t, tgt.IsAdhocPrerequisite(static))
	assert.True(t, tgt.IsAdhocPrerequisite(dynamic))
	assert.False(t, tgt.IsAdhocPrerequisite(NewTarget(Key{Type: tt, Name: "absent"}, DeclExplicit)))
}

func TestActionStateRoundTrips(t *testing.T) {
	tt := keyTestType("graph-test-target-actionstate")
	tgt := NewTarget(Key{Type: tt, Name: "foo"}, DeclExplicit)

	st := tgt.ActionState(0)
	assert.NotNil(t, st)
	st.MatchedRule = "some-rule"
	st.DependencyCount = 3
	tgt.SetActionState(0, st)

	got := tgt.ActionState(0)
	assert.Equal(t, "some-rule", got.MatchedRule)
	assert.Equal(t, 3, got.DependencyCount)

	other := tgt.ActionState(1)
	assert.Nil(t, other.MatchedRule)
}

func TestUpgradeDeclLevelOnlyRaisesSpecificity(t *testing.T) {
	tgt := NewTarget(Key{Type: keyTestType("graph-test-target-decl"), Name: "foo"}, DeclAdhoc)
	tgt.UpgradeDeclLevel(DeclImplicit)
	assert.Equal(t, DeclImplicit, tgt.DeclLevel)
	tgt.UpgradeDeclLevel(DeclAdhoc)
	assert.Equal(t, DeclImplicit, tgt.DeclLevel, "a less specific level must not downgrade an already-seen target")
	tgt.UpgradeDeclLevel(DeclExplicit)
	assert.Equal(t, DeclExplicit, tgt.DeclLevel)
}

func TestOpStateStringNames(t *testing.T) {
	assert.Equal(t, "touched", StateTouched.String())
	assert.Equal(t, "executed", StateExecuted.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", OpState(99).String())
}

func TestTargetStringUsesKey(t *testing.T) {
	tt := keyTestType("graph-test-target-string")
	tgt := NewTarget(Key{Type: tt, Name: "foo", Ext: "cc"}, DeclExplicit)
	assert.Equal(t, tgt.Key.String(), tgt.String())
}

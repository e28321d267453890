package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContextDefaults(t *testing.T) {
	ctx := NewContext()
	require.NotNil(t, ctx.Global)
	assert.True(t, ctx.Global.Root())
	assert.Equal(t, PhaseLoad, ctx.Phase())
	assert.False(t, ctx.DryRun)
}

func TestContextOptionsApply(t *testing.T) {
	ctx := NewContext(WithDryRun(true), WithKeepGoing(true), WithParallelism(3))
	assert.True(t, ctx.DryRun)
	assert.True(t, ctx.KeepGoing)
}

func TestContextDependencyCounters(t *testing.T) {
	ctx := NewContext()
	ctx.MatchedDependency()
	ctx.MatchedDependency()
	ctx.ExecutedDependency()
	assert.Equal(t, int64(1), ctx.DependencyCount)

	ctx.MatchedTarget()
	ctx.SkippedTarget()
	assert.Equal(t, int64(0), ctx.TargetCount)
	assert.Equal(t, int64(1), ctx.SkipCount)
}

func TestNextLoadGenerationIncrements(t *testing.T) {
	ctx := NewContext()
	g1 := ctx.NextLoadGeneration()
	g2 := ctx.NextLoadGeneration()
	assert.Equal(t, g1+1, g2)
}

func TestNestedContextTracksParent(t *testing.T) {
	parent := NewContext()
	child := NewNestedContext(parent)
	assert.Same(t, parent, child.Parent)
}

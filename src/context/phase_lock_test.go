package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquirePhaseJoinsSamePhaseOnSameGoroutine(t *testing.T) {
	ctx := NewContext(WithParallelism(2))

	outer := AcquirePhase(ctx, PhaseLoad)
	defer outer.Release()

	inner := AcquirePhase(ctx, PhaseLoad)
	assert.Equal(t, PhaseLoad, inner.Phase())
	inner.Release() // no-op: joined locks don't release the real hold

	assert.Equal(t, PhaseLoad, ctx.Phase())
}

func TestAcquirePhaseDifferentPhaseSameGoroutinePanics(t *testing.T) {
	ctx := NewContext(WithParallelism(2))

	outer := AcquirePhase(ctx, PhaseLoad)
	defer outer.Release()

	assert.Panics(t, func() {
		AcquirePhase(ctx, PhaseMatch)
	})
}

func TestRelockPhaseSwitchesMatchToExecute(t *testing.T) {
	ctx := NewContext(WithParallelism(2))

	pl := AcquirePhase(ctx, PhaseMatch)
	require.Equal(t, PhaseMatch, ctx.Phase())

	pl = RelockPhase(pl, PhaseExecute)
	assert.Equal(t, PhaseExecute, ctx.Phase())
	pl.Release()
}

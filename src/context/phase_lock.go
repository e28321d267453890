package context

import (
	"sync"

	"github.com/petermattis/goid"
)

// goroutinePhase tracks which phase lock (if any) the calling goroutine
// already holds, so a nested AcquirePhase for the same Context and Phase on
// the same goroutine joins rather than deadlocks -- grounded on build2's
// thread_local phase_lock_instance, translated to a goroutine-id-keyed map
// since Go has no native thread-local storage.
var (
	goroutinePhaseMu sync.Mutex
	goroutinePhase   = map[int64]*PhaseLock{}
)

// PhaseLock is a scoped phase hold: acquire with AcquirePhase, release with
// Release (typically deferred). Nesting an AcquirePhase for the same
// Context and Phase on the same goroutine is a cheap join; nesting a
// different phase panics, since that would mean a goroutine trying to hold
// two phases of the same context at once.
type PhaseLock struct {
	ctx    *Context
	phase  Phase
	owned  bool // false if this just joined an outer PhaseLock
	parent *PhaseLock
}

// Phase reports the phase this lock holds.
func (pl *PhaseLock) Phase() Phase { return pl.phase }

// PhaseFailedError is panicked by AcquirePhase when the phase mutex has
// already been marked failed by an earlier load-phase failure.
type PhaseFailedError struct{ Phase Phase }

func (e *PhaseFailedError) Error() string {
	return "context: phase lock failed (" + e.Phase.String() + ")"
}

// AcquirePhase blocks until phase can be entered for ctx and returns a
// PhaseLock the caller must Release (usually via defer).
func AcquirePhase(ctx *Context, phase Phase) *PhaseLock {
	gid := goid.Get()

	goroutinePhaseMu.Lock()
	outer := goroutinePhase[gid]
	goroutinePhaseMu.Unlock()

	if outer != nil && outer.ctx == ctx {
		if outer.phase != phase {
			panic("context: nested phase lock for a different phase on the same goroutine")
		}
		return &PhaseLock{ctx: ctx, phase: phase, owned: false, parent: outer}
	}

	if !ctx.phaseMutex.Lock(phase) {
		ctx.phaseMutex.Unlock(phase)
		panic(&PhaseFailedError{Phase: phase})
	}

	pl := &PhaseLock{ctx: ctx, phase: phase, owned: true, parent: outer}
	goroutinePhaseMu.Lock()
	goroutinePhase[gid] = pl
	goroutinePhaseMu.Unlock()
	return pl
}

// Release ends the phase hold. A joined (non-owning) lock is a no-op.
func (pl *PhaseLock) Release() {
	if !pl.owned {
		return
	}
	gid := goid.Get()
	goroutinePhaseMu.Lock()
	goroutinePhase[gid] = pl.parent
	goroutinePhaseMu.Unlock()
	pl.ctx.phaseMutex.Unlock(pl.phase)
}

// RelockPhase switches the calling goroutine's phase hold pl from its
// current phase to n, returning the new PhaseLock, mirroring build2's
// phase_switch (only meaningful nested inside an existing phase_lock). It
// panics if pl is a joined (non-owning) lock, and panics with a
// *PhaseFailedError if the phase mutex has been marked failed.
func RelockPhase(pl *PhaseLock, n Phase) *PhaseLock {
	if !pl.owned {
		panic("context: RelockPhase on a joined (non-owning) phase lock")
	}
	_, ok := pl.ctx.phaseMutex.Relock(pl.phase, n)
	if !ok {
		panic(&PhaseFailedError{Phase: n})
	}
	gid := goid.Get()
	next := &PhaseLock{ctx: pl.ctx, phase: n, owned: true, parent: pl.parent}
	goroutinePhaseMu.Lock()
	goroutinePhase[gid] = next
	goroutinePhaseMu.Unlock()
	return next
}

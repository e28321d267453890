package context

import (
	"sync"
	"sync/atomic"
)

// phaseScheduler is the subset of *Scheduler the phase mutex needs: it steps
// aside (Deactivate) before blocking on a phase switch and rejoins
// (Activate) after, and it resizes its active worker count across the
// match/execute boundary (PushPhase/PopPhase). Expressed as an interface so
// phase_mutex.go and scheduler.go can be read independently.
type phaseScheduler interface {
	Deactivate(external bool)
	Activate(external bool)
	PushPhase()
	PopPhase()
}

// PhaseMutex is a "tri-mutex" keeping every goroutine participating in a
// Context in one of the three phases at a time: load is exclusive (a second
// mutex, lm, serializes it on top of the counter protocol), match and
// execute each allow unbounded concurrent holders but never overlap with
// each other or with load. Grounded on build2's run_phase_mutex
// (libbuild2/context.cxx).
type PhaseMutex struct {
	sched phaseScheduler

	mu    phaseMu
	phase Phase
	fail  bool

	lc, mc, ec int
	lv, mv, ev *sync.Cond

	lm sync.Mutex // second-level mutex serializing the load phase

	Contention     int64 // # of contentious phase (re)locks
	ContentionLoad int64 // # of contentious load phase locks
}

func newPhaseMutex(sched phaseScheduler) *PhaseMutex {
	pm := &PhaseMutex{sched: sched}
	pm.lv = sync.NewCond(&pm.mu)
	pm.mv = sync.NewCond(&pm.mu)
	pm.ev = sync.NewCond(&pm.mu)
	return pm
}

// Current returns the phase currently in effect.
func (pm *PhaseMutex) Current() Phase {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.phase
}

// Fail marks the mutex as failed: every blocked and future Lock/Relock call
// returns false from here on, though the phase switch itself still
// proceeds (a load phase that failed partway through can leave build state
// inconsistent, so everyone waiting needs to know not to trust it).
func (pm *PhaseMutex) Fail() {
	pm.mu.Lock()
	pm.fail = true
	pm.mu.Unlock()
}

func (pm *PhaseMutex) condFor(p Phase) *sync.Cond {
	switch p {
	case PhaseLoad:
		return pm.lv
	case PhaseMatch:
		return pm.mv
	default:
		return pm.ev
	}
}

// Lock acquires a phase lock, blocking (unless already in the desired
// phase) until switching to it is possible. Returns false on failure.
func (pm *PhaseMutex) Lock(n Phase) bool {
	pm.mu.Lock()
	unlocked := pm.lc == 0 && pm.mc == 0 && pm.ec == 0
	switch n {
	case PhaseLoad:
		pm.lc++
	case PhaseMatch:
		pm.mc++
	case PhaseExecute:
		pm.ec++
	}

	var r bool
	switch {
	case unlocked:
		pm.phase = n
		r = !pm.fail
		pm.mu.Unlock()
	case pm.phase != n:
		atomic.AddInt64(&pm.Contention, 1)
		cond := pm.condFor(n)
		pm.sched.Deactivate(false)
		for pm.phase != n {
			cond.Wait()
		}
		r = !pm.fail
		pm.mu.Unlock() // important: Activate can block
		pm.sched.Activate(false)
	default:
		r = !pm.fail
		pm.mu.Unlock()
	}

	if n == PhaseLoad {
		if !pm.lm.TryLock() {
			pm.sched.Deactivate(false)
			pm.lm.Lock()
			pm.sched.Activate(false)
			atomic.AddInt64(&pm.ContentionLoad, 1)
		}
		pm.mu.Lock()
		r = !pm.fail
		pm.mu.Unlock()
	}
	return r
}

// Unlock releases a phase lock acquired by Lock/Relock, switching to
// whichever phase is now wanted (or back to load, the default idle phase)
// if this was the last holder of o.
func (pm *PhaseMutex) Unlock(o Phase) {
	if o == PhaseLoad {
		pm.lm.Unlock()
	}

	pm.mu.Lock()
	unlocked := false
	switch o {
	case PhaseLoad:
		pm.lc--
		unlocked = pm.lc == 0
	case PhaseMatch:
		pm.mc--
		unlocked = pm.mc == 0
	case PhaseExecute:
		pm.ec--
		unlocked = pm.ec == 0
	}
	if !unlocked {
		pm.mu.Unlock()
		return
	}

	var n Phase
	var cond *sync.Cond
	switch {
	case pm.lc != 0:
		n, cond = PhaseLoad, pm.lv
	case pm.mc != 0:
		n, cond = PhaseMatch, pm.mv
	case pm.ec != 0:
		n, cond = PhaseExecute, pm.ev
	default:
		n = PhaseLoad
	}
	pm.phase = n

	if o == PhaseMatch && n == PhaseExecute {
		pm.sched.PushPhase()
	} else if o == PhaseExecute && n == PhaseMatch {
		pm.sched.PopPhase()
	}

	pm.mu.Unlock()
	if cond != nil {
		cond.Broadcast()
	}
}

// Relock is a fused unlock(o)/lock(n) that always switches into n. Returns
// (switched, ok): ok is false on failure (mirrors optional<bool>, where
// nullopt means failure); switched is true unless this call merely joined a
// phase another goroutine had already switched to (useful to skip
// phase-switch housekeeping that only the first arriver needs to do).
func (pm *PhaseMutex) Relock(o, n Phase) (switched bool, ok bool) {
	if o == n {
		panic("context: Relock to the same phase")
	}
	s := true

	if o == PhaseLoad {
		pm.lm.Unlock()
	}

	pm.mu.Lock()
	unlocked := false
	switch o {
	case PhaseLoad:
		pm.lc--
		unlocked = pm.lc == 0
	case PhaseMatch:
		pm.mc--
		unlocked = pm.mc == 0
	case PhaseExecute:
		pm.ec--
		unlocked = pm.ec == 0
	}

	var prev int
	switch n {
	case PhaseLoad:
		prev = pm.lc
		pm.lc++
	case PhaseMatch:
		prev = pm.mc
		pm.mc++
	case PhaseExecute:
		prev = pm.ec
		pm.ec++
	}
	cond := pm.condFor(n)
	willWaitOrNotify := prev != 0 || !unlocked

	var r bool
	if unlocked {
		pm.phase = n
		r = !pm.fail

		if o == PhaseMatch && n == PhaseExecute {
			pm.sched.PushPhase()
		} else if o == PhaseExecute && n == PhaseMatch {
			pm.sched.PopPhase()
		}

		pm.mu.Unlock()
		if willWaitOrNotify {
			cond.Broadcast()
		}
	} else {
		atomic.AddInt64(&pm.Contention, 1)
		pm.sched.Deactivate(false)
		for pm.phase != n {
			cond.Wait()
		}
		r = !pm.fail
		pm.mu.Unlock() // important: Activate can block
		pm.sched.Activate(false)
	}

	if n == PhaseLoad {
		if !pm.lm.TryLock() {
			// Someone else is already in (or was in) the load phase; it's
			// impossible for the phase to have changed between our TryLock
			// and the blocking Lock below because of our own +1 above.
			s = false
			pm.sched.Deactivate(false)
			pm.lm.Lock()
			pm.sched.Activate(false)
			atomic.AddInt64(&pm.ContentionLoad, 1)
		}
		pm.mu.Lock()
		r = !pm.fail
		pm.mu.Unlock()
	}

	if !r {
		return false, false
	}
	return s, true
}

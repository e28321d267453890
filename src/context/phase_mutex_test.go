package context

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopScheduler satisfies phaseScheduler without touching a real worker
// pool, so the phase mutex's own protocol can be tested in isolation.
type noopScheduler struct {
	mu                           sync.Mutex
	deactivated, activated       int
	pushed, popped               int
}

func (s *noopScheduler) Deactivate(bool) { s.mu.Lock(); s.deactivated++; s.mu.Unlock() }
func (s *noopScheduler) Activate(bool)   { s.mu.Lock(); s.activated++; s.mu.Unlock() }
func (s *noopScheduler) PushPhase()      { s.mu.Lock(); s.pushed++; s.mu.Unlock() }
func (s *noopScheduler) PopPhase()       { s.mu.Lock(); s.popped++; s.mu.Unlock() }

func TestPhaseMutexUncontendedLock(t *testing.T) {
	pm := newPhaseMutex(&noopScheduler{})
	assert.Equal(t, PhaseLoad, pm.Current())
	require.True(t, pm.Lock(PhaseLoad))
	assert.Equal(t, PhaseLoad, pm.Current())
	pm.Unlock(PhaseLoad)
}

func TestPhaseMutexMatchIsShared(t *testing.T) {
	pm := newPhaseMutex(&noopScheduler{})
	require.True(t, pm.Lock(PhaseMatch))
	require.True(t, pm.Lock(PhaseMatch))
	assert.Equal(t, PhaseMatch, pm.Current())
	pm.Unlock(PhaseMatch)
	assert.Equal(t, PhaseMatch, pm.Current())
	pm.Unlock(PhaseMatch)
}

func TestPhaseMutexLoadExcludesMatch(t *testing.T) {
	sched := &noopScheduler{}
	pm := newPhaseMutex(sched)
	require.True(t, pm.Lock(PhaseLoad))

	done := make(chan struct{})
	go func() {
		require.True(t, pm.Lock(PhaseMatch))
		pm.Unlock(PhaseMatch)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("match lock acquired while load lock still held")
	case <-time.After(50 * time.Millisecond):
	}

	pm.Unlock(PhaseLoad)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("match lock never acquired after load released")
	}
	assert.Equal(t, PhaseLoad, pm.Current()) // falls back to load once idle
}

func TestPhaseMutexUnlockPicksMatchOverLoad(t *testing.T) {
	pm := newPhaseMutex(&noopScheduler{})
	require.True(t, pm.Lock(PhaseLoad))

	matchAcquired := make(chan struct{})
	go func() {
		require.True(t, pm.Lock(PhaseMatch))
		close(matchAcquired)
	}()
	time.Sleep(20 * time.Millisecond) // let the match waiter register

	pm.Unlock(PhaseLoad)
	<-matchAcquired
	assert.Equal(t, PhaseMatch, pm.Current())
}

func TestPhaseMutexRelockMatchToExecutePushesPhase(t *testing.T) {
	sched := &noopScheduler{}
	pm := newPhaseMutex(sched)
	require.True(t, pm.Lock(PhaseMatch))

	switched, ok := pm.Relock(PhaseMatch, PhaseExecute)
	require.True(t, ok)
	assert.True(t, switched)
	assert.Equal(t, PhaseExecute, pm.Current())
	assert.Equal(t, 1, sched.pushed)

	pm.Unlock(PhaseExecute)
}

func TestPhaseMutexFailPropagates(t *testing.T) {
	pm := newPhaseMutex(&noopScheduler{})
	require.True(t, pm.Lock(PhaseLoad))
	pm.Fail()
	pm.Unlock(PhaseLoad)

	assert.False(t, pm.Lock(PhaseLoad))
}

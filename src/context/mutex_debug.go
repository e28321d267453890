//go:build anvil_deadlock_debug

package context

import "github.com/sasha-s/go-deadlock"

// phaseMu is the phase mutex's internal lock. Under the anvil_deadlock_debug
// build tag it swaps in go-deadlock's lock-order-tracking Mutex: the
// hand-rolled lock/condvar dance in phase_mutex.go is exactly the kind of
// protocol that regresses silently into deadlock during a refactor, and
// go-deadlock is already in the dependency set for this.
type phaseMu = deadlock.Mutex

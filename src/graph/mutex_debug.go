//go:build anvil_deadlock_debug

package graph

import "github.com/sasha-s/go-deadlock"

// targetMu guards Target/Group bookkeeping (prerequisites, group membership,
// decl-level upgrades). Under the anvil_deadlock_debug build tag it swaps
// in go-deadlock's lock-order-tracking Mutex, matching src/context's same
// swap for the phase mutex's internal lock.
type targetMu = deadlock.Mutex

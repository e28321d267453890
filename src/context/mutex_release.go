//go:build !anvil_deadlock_debug

package context

import "sync"

// phaseMu is the phase mutex's internal lock: plain sync.Mutex by default.
// See mutex_debug.go for the anvil_deadlock_debug build.
type phaseMu = sync.Mutex

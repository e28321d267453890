//go:build !anvil_deadlock_debug

package graph

import "sync"

// targetMu is the default, non-instrumented lock. See mutex_debug.go for
// the anvil_deadlock_debug build.
type targetMu = sync.Mutex

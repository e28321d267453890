// Package diag holds the engine's diagnostics surface: a single sentinel
// failure error, a goroutine-scoped stack of context frames attached to it
// as it unwinds, buffered/streamed child process output, progress
// reporting, and near-miss name suggestions (spec.md §7).
package diag

import (
	"errors"
	"fmt"
)

// Failure is the sentinel build2 calls `failed`: by the time it's returned,
// whoever raised it has already emitted the real diagnostics (through the
// logger or a Frame), so callers up the stack only need to know the build
// failed, not re-report why. Every component in this engine returns this
// same error value (wrapped, via errors.Is) rather than inventing its own
// failure type, per spec.md §9's "one exception-like type is enough".
var Failure = errors.New("build failed")

// IsFailure reports whether err is (or wraps) Failure.
func IsFailure(err error) bool { return errors.Is(err, Failure) }

// Fail wraps Failure with a message, still satisfying errors.Is(err, Failure).
func Fail(msg string) error { return &failureError{msg: msg} }

// Failf is Fail with fmt-style formatting.
func Failf(format string, args ...any) error { return &failureError{msg: fmt.Sprintf(format, args...)} }

type failureError struct{ msg string }

func (e *failureError) Error() string { return e.msg }
func (e *failureError) Is(target error) bool { return target == Failure }
func (e *failureError) Unwrap() error        { return Failure }

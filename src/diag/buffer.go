package diag

import (
	"bytes"
	"io"
	"sync"
)

// OutputBuffer captures one process's combined stdout/stderr. In buffered
// mode (the default whenever more than one action could be running at
// once) writes accumulate and are only released to the underlying writer by
// Flush, so concurrent recipes don't interleave their output; in streamed
// mode (serial builds, or --no-diag-buffer) every Write goes straight
// through. Grounded on src/process's safeBuffer (a mutex-guarded
// bytes.Buffer sharing one writer between a command's stdout and stderr
// goroutines), generalized per spec.md §7's buffered-vs-streamed rule.
type OutputBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	dest     io.Writer
	streamed bool
}

// NewOutputBuffer constructs a buffer writing eventually (or, if streamed is
// true, immediately) to dest.
func NewOutputBuffer(dest io.Writer, streamed bool) *OutputBuffer {
	return &OutputBuffer{dest: dest, streamed: streamed}
}

func (b *OutputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamed {
		return b.dest.Write(p)
	}
	return b.buf.Write(p)
}

// Flush releases any buffered bytes to dest. A no-op in streamed mode,
// since those bytes were already written. Safe to call exactly once per
// process completion (the usual spec.md §7 "flushed atomically at
// completion" point).
func (b *OutputBuffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamed || b.buf.Len() == 0 {
		return nil
	}
	_, err := b.dest.Write(b.buf.Bytes())
	b.buf.Reset()
	return err
}

// Bytes returns a snapshot of whatever has been buffered so far (empty in
// streamed mode, since nothing is retained).
func (b *OutputBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

package diag

import (
	"strings"
	"sync"

	"github.com/petermattis/goid"
)

// Frame is one entry of a goroutine-scoped diagnostic stack: a callback that
// renders additional context (e.g. "while matching rule X for target Y")
// when the build ultimately fails. Grounded on build2's diag_frame, which
// is a thread_local intrusive stack of exactly this shape
// (original_source/libbuild2/diagnostics.hxx); translated to a
// goroutine-id-keyed map the same way src/context/phase_lock.go does, since
// Go has no thread-local storage.
type Frame struct {
	Render func() string
	prev   *Frame
}

var (
	frameMu   sync.Mutex
	frameTops = map[int64]*Frame{}
)

// PushFrame pushes a new frame onto the calling goroutine's stack and
// returns a function that pops it back off -- call via defer.
func PushFrame(render func() string) func() {
	gid := goid.Get()
	frameMu.Lock()
	f := &Frame{Render: render, prev: frameTops[gid]}
	frameTops[gid] = f
	frameMu.Unlock()

	return func() {
		frameMu.Lock()
		frameTops[gid] = f.prev
		frameMu.Unlock()
	}
}

// StackLines renders the calling goroutine's current frame stack, one line
// per frame, innermost first.
func StackLines() []string {
	gid := goid.Get()
	frameMu.Lock()
	f := frameTops[gid]
	frameMu.Unlock()

	var lines []string
	for ; f != nil; f = f.prev {
		lines = append(lines, f.Render())
	}
	return lines
}

// WithFrame renders the active stack as additional context appended to msg,
// one "\n  while ..." line per frame -- used when constructing a Failure
// message right before returning it.
func WithFrame(msg string) string {
	lines := StackLines()
	if len(lines) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for _, l := range lines {
		b.WriteString("\n  while ")
		b.WriteString(l)
	}
	return b.String()
}

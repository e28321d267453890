// Package scope implements the doubly-rooted out/src scope tree and the
// variable lookup-walk that resolves a name against it (spec.md §3 "Scopes",
// §4.2).
package scope

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/build2/build2-sub005/src/value"
)

// Kind marks which tier of the project hierarchy a Scope sits at, since the
// lookup walk's visibility truncation needs to know when it has crossed a
// project or global boundary (spec.md §3 "Variable visibility").
type Kind int

const (
	KindOrdinary Kind = iota // an ordinary (sub)directory scope
	KindProject               // the root scope of one project
	KindGlobal                // the single process-wide root, parent of every project
)

// Scope is one node of the out/src scope tree. The tree is doubly rooted:
// every scope has both an out-directory and a src-directory identity, and
// the two trees share the same shape (spec.md §3).
//
// kind and parent are mutated after construction by Map.insert -- a scope
// inserted before its eventual parent exists gets reparented onto it once it
// shows up, and a scope first seen as ordinary gets upgraded to project kind
// -- while Lookup and rule matching walk Parent/Kind concurrently from other
// goroutines with no shared lock. Both fields are therefore atomic rather
// than plain, so a concurrent walk never observes a torn pointer or a stale
// kind.
type Scope struct {
	Out, Src string
	Vars     *value.Pool

	kind   atomic.Int32
	parent atomic.Pointer[Scope]

	mu       sync.RWMutex
	patterns []value.Pattern
}

// newScope constructs a scope; callers go through Map so the tree stays
// consistent.
func newScope(out, src string, kind Kind, parent *Scope) *Scope {
	s := &Scope{Out: out, Src: src, Vars: value.NewPool()}
	s.kind.Store(int32(kind))
	s.parent.Store(parent)
	return s
}

// Kind reports this scope's current tier (spec.md §3). It may change over
// the scope tree's lifetime (KindOrdinary upgrading to KindProject) but only
// ever becomes more specific, never less.
func (s *Scope) Kind() Kind { return Kind(s.kind.Load()) }

// Parent returns this scope's current parent, or nil for the global root.
// The result can change across calls as the tree grows (spec.md §4.2's
// reparenting), so callers walking the tree should re-read it on each step
// rather than caching it.
func (s *Scope) Parent() *Scope { return s.parent.Load() }

// Root reports whether this scope has no parent (the global scope).
func (s *Scope) Root() bool { return s.Parent() == nil }

// isDirPrefix reports whether prefix is dir itself or an ancestor directory
// of it, respecting path segment boundaries (so "foo" is not a prefix of
// "foobar").
func isDirPrefix(prefix, dir string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	dir = strings.TrimSuffix(dir, "/")
	if prefix == "" {
		return true
	}
	if prefix == dir {
		return true
	}
	return strings.HasPrefix(dir, prefix+"/")
}

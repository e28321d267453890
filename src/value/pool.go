package value

import (
	"fmt"
	"strings"
	"sync"
)

// Pattern describes one `prefix*suffix` or `prefix**suffix` variable-name
// pattern registered in a pool (spec.md §3, "Variable patterns"). The `**`
// form matches through `.`, the single `*` form does not.
type Pattern struct {
	Prefix, Suffix string
	Wide           bool // true for `**` (matches through '.')
	Type           *VTable
	Visibility     Visibility
	Overridable    bool
}

// Matches reports whether name satisfies this pattern.
func (p Pattern) Matches(name string) bool {
	if !strings.HasPrefix(name, p.Prefix) || !strings.HasSuffix(name, p.Suffix) {
		return false
	}
	mid := name[len(p.Prefix) : len(name)-len(p.Suffix)]
	if mid == "" {
		return false // patterns require at least one character in the wildcard span
	}
	if !p.Wide && strings.ContainsRune(mid, '.') {
		return false
	}
	return true
}

// specificity orders patterns so the "most specific" (longest fixed prefix
// and suffix, narrow over wide) wins when more than one matches.
func (p Pattern) specificity() int {
	s := len(p.Prefix) + len(p.Suffix)
	if !p.Wide {
		s += 1 << 16 // narrow patterns always beat wide ones regardless of length
	}
	return s
}

// PhaseChecker lets a Pool assert it is only mutated during the load phase
// once it is shared across goroutines (spec.md §4.1: "a newly constructed
// pool is writable; a shared pool asserts phase==load on insertion"). It is
// satisfied by context.Context without value importing context (which would
// create an import cycle); context wires itself in via MarkShared.
type PhaseChecker func() (isLoad bool)

// Pool is the process-wide (or scope-local) variable pool: it interns
// Variable descriptors by name and holds the set of registered Patterns.
type Pool struct {
	mu       sync.RWMutex
	vars     map[string]*Variable
	patterns []Pattern
	shared   bool
	checker  PhaseChecker
	overrideSeq int
}

// NewPool constructs a writable, unshared pool.
func NewPool() *Pool {
	return &Pool{vars: map[string]*Variable{}}
}

// MarkShared marks the pool as process-wide, requiring checker() to report
// true (load phase) on every subsequent insertion.
func (p *Pool) MarkShared(checker PhaseChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shared = true
	p.checker = checker
}

func (p *Pool) assertWritable() error {
	if p.shared && p.checker != nil && !p.checker() {
		return fmt.Errorf("variable pool: insertion outside load phase")
	}
	return nil
}

// Insert interns a new variable, applying the most specific matching
// pattern's type/visibility/overridability if the variable doesn't already
// exist. Returns the (possibly pre-existing) Variable.
func (p *Pool) Insert(name string) (*Variable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.vars[name]; ok {
		return v, nil
	}
	if err := p.assertWritable(); err != nil {
		return nil, err
	}
	v := &Variable{Name: name, Visibility: VisibilityScope, Overridable: true}
	if pat, ok := p.bestPattern(name); ok {
		v.Type = pat.Type
		v.typeFrozen = pat.Type != nil
		v.Visibility = pat.Visibility
		v.Overridable = pat.Overridable
		v.visibilityFrozen = true
	}
	p.vars[name] = v
	return v, nil
}

// Lookup returns an existing variable without inserting one.
func (p *Pool) Lookup(name string) (*Variable, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.vars[name]
	return v, ok
}

// AddPattern registers a new pattern. Patterns can be applied
// retrospectively (spec.md §3): any variable already in the pool that
// matches, and doesn't yet have a frozen type/explicit visibility, adopts
// the pattern's attributes if it is the most specific match for that name.
// Once a variable has taken its type and visibility/overridability from a
// pattern, a later, more specific pattern registration no longer reopens
// either -- mirroring Typify's "immutable once frozen" rule so a variable's
// effective visibility can't flip out from under code that already observed
// it.
func (p *Pool) AddPattern(pat Pattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patterns = append(p.patterns, pat)
	for name, v := range p.vars {
		if best, ok := p.bestPattern(name); ok && sameSpan(best, pat) {
			if !v.typeFrozen && pat.Type != nil {
				v.Type = pat.Type
				v.typeFrozen = true
			}
			if !v.visibilityFrozen {
				v.Visibility = pat.Visibility
				v.Overridable = pat.Overridable
				v.visibilityFrozen = true
			}
		}
	}
}

func sameSpan(a, b Pattern) bool {
	return a.Prefix == b.Prefix && a.Suffix == b.Suffix && a.Wide == b.Wide
}

// bestPattern returns the most specific pattern matching name, scanning in
// reverse-registration order and breaking ties on specificity (spec.md §4.2:
// "scanning a reverse-iterated map of patterns ... taking the most specific
// pattern match"). Caller must hold p.mu.
func (p *Pool) bestPattern(name string) (Pattern, bool) {
	var best Pattern
	found := false
	for i := len(p.patterns) - 1; i >= 0; i-- {
		pat := p.patterns[i]
		if !pat.Matches(name) {
			continue
		}
		if !found || pat.specificity() > best.specificity() {
			best = pat
			found = true
		}
	}
	return best, found
}

// MatchPattern reports the most specific pattern registered in this pool
// that matches name, without inserting anything. Used by scope lookup to
// decide whether an inner scope's pattern should take precedence over an
// outer scope's before falling back to actually interning the variable.
func (p *Pool) MatchPattern(name string) (Pattern, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bestPattern(name)
}

// NextOverrideSeq hands out a monotonically increasing sequence number for
// a newly registered override, so that override chains preserve
// command-line order across the whole pool (spec.md §4.1).
func (p *Pool) NextOverrideSeq() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrideSeq++
	return p.overrideSeq
}

// All returns a snapshot of every variable currently interned. Used by
// config.build dumping (src/config) and diagnostics.
func (p *Pool) All() []*Variable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Variable, 0, len(p.vars))
	for _, v := range p.vars {
		out = append(out, v)
	}
	return out
}

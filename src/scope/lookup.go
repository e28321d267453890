package scope

import "github.com/build2/build2-sub005/src/value"

// Lookup walks from start upward through Parent looking for name, inserting
// nothing (spec.md §4.2's "lookup_original"). The walk returns the innermost
// definition of name, but a definition's own Visibility truncates how far
// outward it may be seen from: `scope` (and, absent a target-specific slot
// of its own, `target`) is only visible from the scope that declares it;
// `project` is visible anywhere within the declaring project but not beyond
// its root; `global` and `prerequisite` are visible from anywhere. A
// definition found outside its own visibility is not a usable result --
// lookup reports not-found rather than continuing outward past it, matching
// "visibility truncates the walk".
func Lookup(start *Scope, name string) (*value.Variable, *Scope, bool) {
	for cur := start; cur != nil; cur = cur.Parent() {
		v, ok := cur.Vars.Lookup(name)
		if !ok {
			continue
		}
		if !visibleFrom(v.Visibility, start, cur) {
			return nil, nil, false
		}
		return v, cur, true
	}
	return nil, nil, false
}

// visibleFrom reports whether a variable declared at found, with visibility
// vis, can be resolved by a lookup starting at start (spec.md §4.2).
func visibleFrom(vis value.Visibility, start, found *Scope) bool {
	switch vis {
	case value.VisibilityScope, value.VisibilityTarget:
		return found == start
	case value.VisibilityProject:
		return !crossesProjectBoundary(start, found)
	default: // VisibilityGlobal, VisibilityPrerequisite: no scope truncation
		return true
	}
}

// crossesProjectBoundary reports whether found lies outside the project that
// owns start: walking outward from start, the project root scope (inclusive)
// is the last point a project-visibility variable may still be found at.
func crossesProjectBoundary(start, found *Scope) bool {
	for cur := start; cur != nil; cur = cur.Parent() {
		if cur == found {
			return false
		}
		if cur.Kind() == KindProject || cur.Kind() == KindGlobal {
			return true
		}
	}
	return true
}

// LookupOrInsert is Lookup, falling back to interning name in start's own
// pool if Lookup finds no usable definition. The new variable takes the most
// specific of start's own matching patterns, if any; patterns registered at
// outer scopes are not applied (spec.md §3's retrospective pattern
// application is scoped per pool, never inherited across scopes).
func LookupOrInsert(start *Scope, name string) (*value.Variable, *Scope, error) {
	if v, s, ok := Lookup(start, name); ok {
		return v, s, nil
	}
	v, err := start.Vars.Insert(name)
	if err != nil {
		return nil, nil, err
	}
	return v, start, nil
}

// NearestPattern returns the most specific pattern matching name among start
// and its ancestors, preferring the innermost scope that has a match. It is
// used by target-type/rule lookup (src/match) to decide a fragment's stem
// type before a variable with that exact name has ever been inserted.
func NearestPattern(start *Scope, name string) (value.Pattern, *Scope, bool) {
	for cur := start; cur != nil; cur = cur.Parent() {
		if pat, ok := cur.Vars.MatchPattern(name); ok {
			return pat, cur, true
		}
	}
	return value.Pattern{}, nil, false
}

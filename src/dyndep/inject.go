// Package dyndep implements dynamic dependency injection (spec.md §4.6): a
// rule discovering, mid-recipe, that it depends on a file or ad hoc group
// member it couldn't have known about from static prerequisites alone (the
// classic example being a compiler's auto-generated header dependency
// list), and wiring that discovery into the target graph so future builds
// see it as an ordinary prerequisite.
package dyndep

import (
	"time"

	"github.com/build2/build2-sub005/src/diag"
	"github.com/build2/build2-sub005/src/graph"
	"github.com/build2/build2-sub005/src/match"
)

// Engine is the slice of the top-level build driver dyndep needs: trying to
// match a target synchronously (so a dynamically discovered file that turns
// out to need its own recipe gets one before we depend on it) and updating
// it. Kept as a narrow interface, grounded on build2's dyndep.cxx calling
// free functions (try_match_sync, update) that live in algorithm.cxx rather
// than dyndep.cxx itself -- here that split becomes an interface boundary
// instead of a separate translation unit.
type Engine interface {
	TryMatchSync(a match.Action, t *graph.Target) (bool, error)
	Update(a match.Action, t *graph.Target, since time.Time) (bool, error)
}

// InjectFile matches and updates pt (failing the build if required and
// unmatched), then appends it to t's prerequisite list. what labels the
// prerequisite kind in diagnostics (e.g. "header", "generated source").
// Grounded on dyndep.cxx inject_file.
func InjectFile(eng Engine, what string, a match.Action, t, pt *graph.Target, since time.Time, required, adhoc bool) (bool, error) {
	matched, err := eng.TryMatchSync(a, pt)
	if err != nil {
		return false, err
	}
	if !matched {
		if !required {
			return false, nil
		}
		return false, diag.Failf("%s %s not found and no rule to generate it", what, pt)
	}

	updated, err := eng.Update(a, pt, since)
	if err != nil {
		return false, err
	}

	t.AddPrerequisite(pt, adhoc)
	return updated, nil
}

// updatedDuringMatch reports whether pt is reachable, recursively, from t's
// already-accumulated prerequisite list -- the check InjectExistingFile uses
// to decide whether a non-noop recipe on pt is actually fine because some
// earlier prerequisite of t is responsible for having updated it during its
// own match. Grounded on dyndep.cxx's static updated_during_match.
func updatedDuringMatch(t, pt *graph.Target, seen map[*graph.Target]bool) bool {
	if seen[t] {
		return false
	}
	seen[t] = true
	for _, p := range t.Prerequisites() {
		if p == pt {
			return true
		}
		if updatedDuringMatch(p, pt, seen) {
			return true
		}
	}
	return false
}

// NoopChecker reports whether a target was matched to a no-op recipe, the
// detail InjectExistingFile/VerifyExistingFile need but that isn't part of
// graph.Target itself (recipes live in src/match, which graph doesn't
// import).
type NoopChecker interface {
	IsNoop(t *graph.Target) bool
}

// InjectExistingFile is InjectFile's counterpart for a file the caller
// already knows (or strongly suspects) exists without discovering it fresh:
// it still matches and updates pt, but additionally insists that pt's
// recipe be a no-op unless pt is already reachable via an earlier
// prerequisite of t (in which case whoever updates that earlier
// prerequisite is presumed responsible for pt too). Grounded on
// dyndep.cxx inject_existing_file.
func InjectExistingFile(eng Engine, noop NoopChecker, what string, a match.Action, t, pt *graph.Target, since time.Time, required, adhoc bool) (bool, error) {
	matched, err := eng.TryMatchSync(a, pt)
	if err != nil {
		return false, err
	}
	if !matched {
		if !required {
			return false, nil
		}
		return false, diag.Failf("%s %s not found and no rule to generate it", what, pt)
	}

	if !noop.IsNoop(pt) && !updatedDuringMatch(t, pt, map[*graph.Target]bool{}) {
		return false, diag.Failf("%s %s has non-noop recipe\n  consider listing it as static prerequisite of %s", what, pt, t)
	}

	updated, err := eng.Update(a, pt, since)
	if err != nil {
		return false, err
	}

	t.AddPrerequisite(pt, adhoc)
	return updated, nil
}

// VerifyExistingFile is InjectExistingFile's read-only cousin: it checks the
// same "no surprises" invariant but never matches, updates, or adds pt as a
// prerequisite, for callers that only need the diagnostic (e.g. a dry-run
// sanity pass). matched reports whether pt has already progressed through
// match for the action/generation in question (the caller, holding the
// engine, is in the best position to answer that via graph.Target.OpState).
// Grounded on dyndep.cxx verify_existing_file.
func VerifyExistingFile(noop NoopChecker, what string, t, pt *graph.Target, matched bool) error {
	if matched {
		if !noop.IsNoop(pt) && !updatedDuringMatch(t, pt, map[*graph.Target]bool{}) {
			return diag.Failf("%s %s has non-noop recipe\n  consider listing it as static prerequisite of %s", what, pt, t)
		}
		return nil
	}
	if pt.DeclLevel == graph.DeclExplicit {
		return diag.Failf("%s %s is explicitly declared as target and may have non-noop recipe\n  consider listing it as static prerequisite of %s", what, pt, t)
	}
	return nil
}

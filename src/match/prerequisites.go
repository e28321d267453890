package match

import (
	"github.com/samber/lo"

	"github.com/build2/build2-sub005/src/graph"
)

// Include is the value of a prerequisite's "include" variable (spec.md §4.5:
// "false (exclude), true (include), adhoc (include as ad hoc input)").
type Include int

const (
	IncludeTrue Include = iota
	IncludeFalse
	IncludeAdhoc
)

// ParseInclude maps the literal buildfile value to an Include, returning
// IncludeTrue for anything unrecognised (the permissive default spec.md §4.5
// describes for a prerequisite that declares no opinion).
func ParseInclude(s string) Include {
	switch s {
	case "false":
		return IncludeFalse
	case "adhoc":
		return IncludeAdhoc
	default:
		return IncludeTrue
	}
}

// Prerequisite is one static, buildfile-declared dependency edge before it
// has been resolved against the target graph: the target it names plus its
// own include variable and optional scope override (spec.md §4.5, "each
// prerequisite carrying its own optional scope and target-type-specific
// variables").
type Prerequisite struct {
	Target  *graph.Target
	Include Include
	// AdhocOnly marks a prerequisite declared directly in the ad hoc ("+")
	// sense in the buildfile, independent of the Include override below; a
	// meta-operation can still promote an excluded prerequisite to adhoc
	// (spec.md §4.5: "a meta-operation may override ... promotes excluded to
	// adhoc"), which is what the MetaPromoteExcluded filter option does.
	AdhocOnly bool
}

// ResolvedPrerequisite is one entry of the prerequisite_targets list spec.md
// §4.5 builds during apply: the underlying target plus the flags the engine
// needs to decide whether (and how) to match-and-execute it.
type ResolvedPrerequisite struct {
	Target    *graph.Target
	Adhoc     bool
	IncludeUD bool // true if this entry should also run user-defined dependency (udm) steps
}

// FilterOptions controls Filter's include-variable interpretation.
type FilterOptions struct {
	// MetaPromoteExcluded, when true, treats an IncludeFalse prerequisite as
	// IncludeAdhoc instead of dropping it, the override a meta-operation can
	// apply per spec.md §4.5.
	MetaPromoteExcluded bool
}

// Filter reduces a static prerequisite list to the resolved
// prerequisite-targets list an apply step should walk, honouring each
// prerequisite's include variable and opts.
func Filter(prereqs []Prerequisite, opts FilterOptions) []ResolvedPrerequisite {
	kept := lo.Filter(prereqs, func(p Prerequisite, _ int) bool {
		return p.Include != IncludeFalse || opts.MetaPromoteExcluded
	})
	return lo.Map(kept, func(p Prerequisite, _ int) ResolvedPrerequisite {
		adhoc := p.AdhocOnly || p.Include == IncludeAdhoc
		if p.Include == IncludeFalse && opts.MetaPromoteExcluded {
			adhoc = true
		}
		return ResolvedPrerequisite{Target: p.Target, Adhoc: adhoc, IncludeUD: !adhoc}
	})
}

// ContainsTarget reports whether t already appears among targets, the check
// the engine runs against the prerequisite_targets prefix built so far
// before matching a dynamic dependency that might duplicate an earlier
// static prerequisite (spec.md §4.5, "the engine scans the
// prerequisite_targets prefix recursively to check").
func ContainsTarget(targets []ResolvedPrerequisite, t *graph.Target) bool {
	return lo.ContainsBy(targets, func(r ResolvedPrerequisite) bool { return r.Target == t })
}

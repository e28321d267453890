package dyndep

import (
	"github.com/build2/build2-sub005/src/diag"
	"github.com/build2/build2-sub005/src/graph"
)

// GroupFilter lets a caller reject a dynamically discovered member that
// turns out to already be known under a different identity (e.g. a static
// member the buildfile already declared), the way dyndep.cxx's
// group_filter_func callback does. A nil filter accepts every member.
type GroupFilter func(g *graph.Group, member *graph.Target) bool

// InjectGroupMember finds or creates the target named by key (always in the
// out tree, per dyndep.cxx's "Always in out" comment) and links it into g as
// a dynamically discovered member. If the target already exists and filter
// rejects it, InjectGroupMember returns (existing, false, nil) without
// touching the group. If the target is already a member of a different
// group, that's an error. Grounded on dyndep.cxx inject_group_member_impl.
func InjectGroupMember(set *graph.Set, g *graph.Group, key graph.Key, filter GroupFilter) (*graph.Target, bool, error) {
	existing, found := set.Get(key)
	if !found {
		t, inserted, err := set.InsertOrGet(key, graph.DeclImplicit, func() *graph.Target {
			return key.Type.Factory(key)
		})
		if err != nil {
			return nil, false, err
		}
		if inserted {
			g.AddMember(t)
			return t, true, nil
		}
		existing = t
	}

	if g.IsMember(existing) {
		return existing, false, nil
	}

	if filter != nil && !filter(g, existing) {
		return existing, false, nil
	}

	if existing.Group != nil && existing.Group != g {
		return nil, false, diag.Failf("group %s member %s is already member of group %s", g.Primary, existing, existing.Group.Primary)
	}

	g.AddMember(existing)
	return existing, true, nil
}

// InjectAdhocGroupMember is InjectGroupMember's variant for a target's own
// implicit ad hoc member chain rather than an explicit graph.Group: it
// refuses to attach a member that was explicitly declared in a buildfile
// (DeclExplicit), since explicit targets must be listed as static
// prerequisites instead of picked up dynamically. Grounded on dyndep.cxx
// inject_adhoc_group_member_impl.
func InjectAdhocGroupMember(set *graph.Set, primary *graph.Target, key graph.Key) (*graph.Target, bool, error) {
	g := primary.Group
	if g == nil {
		g = graph.NewGroup(primary)
	}

	t, found := set.Get(key)
	if !found {
		var inserted bool
		var err error
		t, inserted, err = set.InsertOrGet(key, graph.DeclAdhoc, func() *graph.Target {
			return key.Type.Factory(key)
		})
		if err != nil {
			return nil, false, err
		}
		if !inserted {
			return t, false, nil
		}
		g.AddMember(t)
		return t, true, nil
	}

	if g.IsMember(t) {
		return t, false, nil
	}

	if t.DeclLevel == graph.DeclExplicit {
		return nil, false, diag.Failf("dynamic target %s already exists and cannot be made ad hoc member of group %s", t, primary)
	}

	g.AddMember(t)
	return t, true, nil
}

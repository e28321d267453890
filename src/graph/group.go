package graph

// Group represents an ad hoc target group (spec.md §4.3): one primary target
// plus zero or more secondary members that are produced as a side effect of
// building the primary (for instance, a compile step that also emits a
// dependency listing). Group owns its member list; each member's Target.Group
// field points back non-owning -- in build2's manual-memory-management world
// that distinction prevents a reference cycle from keeping the group alive
// past its primary; under Go's GC it survives here only as a documented
// invariant, not an enforced one, since nothing is freed explicitly.
type Group struct {
	Primary *Target

	mu      targetMu
	members []*Target
}

// NewGroup creates a group rooted at primary, linking primary back to it.
func NewGroup(primary *Target) *Group {
	g := &Group{Primary: primary}
	primary.Group = g
	return g
}

// AddMember appends t as a secondary member of the group, linking its
// back-reference. It is a no-op if t is already the group's primary.
func (g *Group) AddMember(t *Target) {
	if t == g.Primary {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t.Group = g
	g.members = append(g.members, t)
}

// Members returns a snapshot of the group's secondary members (excluding
// Primary).
func (g *Group) Members() []*Target {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Target{}, g.members...)
}

// IsMember reports whether t is the group's primary or one of its members.
func (g *Group) IsMember(t *Target) bool {
	if t == g.Primary {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.members {
		if m == t {
			return true
		}
	}
	return false
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGroupLinksPrimaryBack(t *testing.T) {
	tt := keyTestType("graph-test-group-primary")
	primary := NewTarget(Key{Type: tt, Name: "primary"}, DeclExplicit)
	g := NewGroup(primary)
	assert.Same(t, g, primary.Group)
	assert.True(t, g.IsMember(primary))
	assert.Empty(t, g.Members())
}

func TestAddMemberLinksBackAndAppears(t *testing.T) {
	tt := keyTestType("graph-test-group-member")
	primary := NewTarget(Key{Type: tt, Name: "primary"}, DeclExplicit)
	member := NewTarget(Key{Type: tt, Name: "member"}, DeclExplicit)
	g := NewGroup(primary)

	g.AddMember(member)
	assert.Same(t, g, member.Group)
	assert.True(t, g.IsMember(member))
	assert.Equal(t, []*Target{member}, g.Members())
}

func TestAddMemberIsNoOpForPrimary(t *testing.T) {
	tt := keyTestType("graph-test-group-noop")
	primary := NewTarget(Key{Type: tt, Name: "primary"}, DeclExplicit)
	g := NewGroup(primary)

	g.AddMember(primary)
	assert.Empty(t, g.Members())
}

func TestIsMemberFalseForUnrelatedTarget(t *testing.T) {
	tt := keyTestType("graph-test-group-unrelated")
	primary := NewTarget(Key{Type: tt, Name: "primary"}, DeclExplicit)
	other := NewTarget(Key{Type: tt, Name: "other"}, DeclExplicit)
	g := NewGroup(primary)

	assert.False(t, g.IsMember(other))
}

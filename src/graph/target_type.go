package graph

import "fmt"

// Type is a target type's v-table (spec.md §3 "Target types", §4.3): the
// set of functions a type must supply instead of the virtual dispatch a
// deep target-type inheritance hierarchy would otherwise need.
type Type struct {
	// Name is the type's buildfile-facing tag, e.g. "cxx" in `cxx{foo.cc}`.
	Name string
	// Base is the type this one derives from, or nil for a root type.
	// Single inheritance only (spec.md §9).
	Base *Type
	// Factory constructs a fresh, empty Target of this type for key.
	Factory func(Key) *Target
	// FixedExtension returns a non-empty extension every target of this type
	// must carry (e.g. "a" for a static library type), or "" if the type
	// doesn't fix one.
	FixedExtension func() string
	// DefaultExtension returns the extension to assume when a key leaves it
	// unspecified (the "foo..." form), or "" if there is none.
	DefaultExtension func() string
	// Pattern reports whether name plausibly belongs to this type, used when
	// a bare filename is matched against candidate types (e.g. during
	// dyndep file injection). nil means "no pattern-based matching".
	Pattern func(name string) bool
	// Print renders a target of this type for diagnostics. Falls back to
	// Key.String() when nil.
	Print func(*Target) string
	// Search locates targets of this type that already exist under dir
	// without requiring an explicit buildfile declaration (spec.md §4.3,
	// ad hoc targets such as existing source files).
	Search func(dir string) ([]Key, error)
}

// IsA reports whether t is other or derives from it, walking the
// single-inheritance Base chain.
func (t *Type) IsA(other *Type) bool {
	for c := t; c != nil; c = c.Base {
		if c == other {
			return true
		}
	}
	return false
}

// String renders the type's name, honouring the base chain only insofar as
// the leaf name is what buildfiles and diagnostics actually use.
func (t *Type) String() string { return t.Name }

var typeRegistry = map[string]*Type{}

// RegisterType interns a target type by name. Re-registering the same name
// with a different *Type is an error (types are fixed for the process
// lifetime, like value.VTable).
func RegisterType(t *Type) {
	if existing, ok := typeRegistry[t.Name]; ok && existing != t {
		panic(fmt.Sprintf("graph: target type %q already registered", t.Name))
	}
	typeRegistry[t.Name] = t
}

// LookupType returns the registered type for name, or (nil, false).
func LookupType(name string) (*Type, bool) {
	t, ok := typeRegistry[name]
	return t, ok
}

// AllTypes returns every currently registered target type, in no particular
// order. Used by dyndep's extension-to-type mapping when it has no narrower
// candidate list to search.
func AllTypes() []*Type {
	out := make([]*Type, 0, len(typeRegistry))
	for _, t := range typeRegistry {
		out = append(out, t)
	}
	return out
}

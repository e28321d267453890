package value

import "fmt"

// Visibility is a variable's lookup-walk scope, per spec.md §3.
type Visibility int

const (
	VisibilityScope Visibility = iota
	VisibilityTarget
	VisibilityProject
	VisibilityGlobal
	VisibilityPrerequisite
)

func (v Visibility) String() string {
	switch v {
	case VisibilityScope:
		return "scope"
	case VisibilityTarget:
		return "target"
	case VisibilityProject:
		return "project"
	case VisibilityGlobal:
		return "global"
	case VisibilityPrerequisite:
		return "prerequisite"
	default:
		return "unknown"
	}
}

// OverrideKind identifies what an override variable does to the value it
// shadows, encoded via the sentinel name suffixes of spec.md §3:
// __override (replace), __prefix (prepend), __suffix (append).
type OverrideKind int

const (
	OverrideReplace OverrideKind = iota
	OverridePrefix
	OverrideSuffix
)

// overrideSuffixes maps the sentinel name suffix to its OverrideKind.
var overrideSuffixes = map[string]OverrideKind{
	"__override": OverrideReplace,
	"__prefix":   OverridePrefix,
	"__suffix":   OverrideSuffix,
}

// SplitOverrideName splits a variable name into its base name and override
// kind, e.g. "cxx.coptions__suffix" -> ("cxx.coptions", OverrideSuffix, true).
func SplitOverrideName(name string) (base string, kind OverrideKind, isOverride bool) {
	for suffix, k := range overrideSuffixes {
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			return name[:len(name)-len(suffix)], k, true
		}
	}
	return name, 0, false
}

// Override is one link in a variable's override alias chain: an override
// variable bearing a sentinel suffix, carrying its own value and the order
// in which it was registered (so iteration order == command-line order).
type Override struct {
	Kind  OverrideKind
	Value *Value
	Seq   int // monotonic registration order, across the whole pool
}

// Variable is an entry in a VariablePool: a name, an optional type, a
// visibility, an overridability flag, and the chain of overrides that apply
// to it (appended in registration order, so the most recent comes last).
type Variable struct {
	Name             string
	Type             *VTable // nil until typified by first assignment
	Visibility       Visibility
	Overridable      bool
	typeFrozen       bool
	visibilityFrozen bool
	Overrides        []*Override
}

// NewVariable constructs a variable descriptor. Type may be nil (typified
// lazily on first assignment of a Names payload).
func NewVariable(name string, vt *VTable, vis Visibility, overridable bool) *Variable {
	return &Variable{Name: name, Type: vt, Visibility: vis, Overridable: overridable, typeFrozen: vt != nil}
}

// Typify freezes the variable's type to vt. Once frozen, a second call with
// a different type is an error (spec.md §3: "the type is immutable").
func (va *Variable) Typify(vt *VTable) error {
	if va.typeFrozen {
		if va.Type != vt {
			return fmt.Errorf("variable %s is already typed as %s, cannot retypify as %s", va.Name, va.Type.TypeName, vt.TypeName)
		}
		return nil
	}
	va.Type = vt
	va.typeFrozen = true
	return nil
}

// AddOverride appends a new override to the alias chain in registration
// order. Returns an error only if the variable isn't overridable; the
// typed-override-on-untyped-variable check lives in ValidateOverride
// (override_parse.go), which runs against the parsed grammar before a Value
// is constructed.
func (va *Variable) AddOverride(kind OverrideKind, val *Value, seq int) error {
	if !va.Overridable {
		return fmt.Errorf("variable %s is not overridable", va.Name)
	}
	va.Overrides = append(va.Overrides, &Override{Kind: kind, Value: val, Seq: seq})
	return nil
}

// MostRecentOverride returns the last-registered __override (replace) alias,
// or nil if none has been registered. This is the "stem" candidate in
// lookup_override_info (spec.md §4.2).
func (va *Variable) MostRecentOverride() *Override {
	var best *Override
	for _, o := range va.Overrides {
		if o.Kind == OverrideReplace && (best == nil || o.Seq > best.Seq) {
			best = o
		}
	}
	return best
}

// PrefixSuffixAfter returns, in registration order, every __prefix/__suffix
// override registered after the given sequence number (the stem's defining
// override, or -1 if there wasn't one), split into prefixes and suffixes.
func (va *Variable) PrefixSuffixAfter(afterSeq int) (prefixes, suffixes []*Override) {
	for _, o := range va.Overrides {
		if o.Seq <= afterSeq {
			continue
		}
		switch o.Kind {
		case OverridePrefix:
			prefixes = append(prefixes, o)
		case OverrideSuffix:
			suffixes = append(suffixes, o)
		}
	}
	return prefixes, suffixes
}

// Package value implements the core's typed value model: a tagged container
// that is either untyped (an ordered sequence of buildfile "names") or one
// of a fixed set of typed values, each dispatched through a v-table rather
// than through interface polymorphism (see DESIGN.md, "deep inheritance of
// value types").
package value

import "fmt"

// Name is a single buildfile token. A value pair ("foo@bar") is represented
// by a non-nil Pair half; plain tokens leave it nil.
type Name struct {
	Simple string
	Pair   *string
}

// String renders a name the way the buildfile lexer would have produced it.
func (n Name) String() string {
	if n.Pair != nil {
		return n.Simple + "@" + *n.Pair
	}
	return n.Simple
}

// Names is the untyped payload of a value: an ordered sequence of tokens.
type Names []Name

// NamesOf is a convenience constructor for simple (non-paired) names.
func NamesOf(ss ...string) Names {
	ns := make(Names, len(ss))
	for i, s := range ss {
		ns[i] = Name{Simple: s}
	}
	return ns
}

func (ns Names) String() string {
	s := ""
	for i, n := range ns {
		if i > 0 {
			s += " "
		}
		s += n.String()
	}
	return s
}

// InvalidValueError is returned when a Names payload cannot be converted to
// a typed value, carrying the offending token and the target type name.
type InvalidValueError struct {
	Type  string
	Name  string
	Cause error
}

func (e *InvalidValueError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid value for type %s: %q (%s)", e.Type, e.Name, e.Cause)
	}
	return fmt.Sprintf("invalid value for type %s: %q", e.Type, e.Name)
}

func (e *InvalidValueError) Unwrap() error { return e.Cause }

// AppendNotSupportedError is returned when append/prepend is attempted on a
// type whose v-table leaves the corresponding function nil.
type AppendNotSupportedError struct {
	Type     string
	Variable string
	Prepend  bool
}

func (e *AppendNotSupportedError) Error() string {
	op := "append"
	if e.Prepend {
		op = "prepend"
	}
	if e.Variable != "" {
		return fmt.Sprintf("%s not supported on type %s (variable %s)", op, e.Type, e.Variable)
	}
	return fmt.Sprintf("%s not supported on type %s", op, e.Type)
}

// VTable is the per-type dispatch table described in spec.md §3.
// Relative to the C++ original it has no Destroy or Move entries, since Go is
// garbage collected; Copy is kept because some types (sequences) need a deep
// copy to avoid aliasing.
type VTable struct {
	// TypeName is the stable, user-facing name of this type (e.g. "string").
	TypeName string
	// Zero returns a fresh zero value of the underlying Go representation.
	Zero func() any
	// Copy returns a deep copy of the payload.
	Copy func(payload any) any
	// AssignFromNames converts a Names payload into this type's representation.
	AssignFromNames func(names Names) (any, error)
	// AppendFromNames appends names-derived content onto an existing payload.
	// Nil means "append not supported" for this type.
	AppendFromNames func(payload any, names Names) (any, error)
	// PrependFromNames is the mirror of AppendFromNames. Nil means unsupported.
	PrependFromNames func(payload any, names Names) (any, error)
	// ReverseToNames converts a typed payload back into Names (the inverse of
	// AssignFromNames, used by the round-trip property in spec.md §8).
	ReverseToNames func(payload any) Names
	// Compare orders two payloads of this type. Returns <0, 0, >0.
	Compare func(a, b any) int
	// Empty reports whether the payload is the type's notion of "empty"
	// (e.g. empty string, empty sequence, zero uint64 is NOT considered
	// empty -- emptiness tracks containers, not zero-valued scalars).
	Empty func(payload any) bool
}

// Value is a tagged container: either untyped (raw Names) or typed (payload
// interpreted through vt). A nil value and an empty value are distinct: Null
// tracks the former explicitly.
type Value struct {
	vt     *VTable // nil => untyped
	names  Names   // populated when vt == nil
	payload any    // populated when vt != nil
	Null   bool
}

// NewUntyped constructs an untyped value directly from names.
func NewUntyped(names Names) *Value {
	return &Value{names: names}
}

// NewNull constructs a null value of the given type (or untyped if vt is
// nil). The payload is still zero-initialized so Append/Prepend (e.g. to
// fold a __prefix/__suffix override onto a variable with no own value) can
// operate on it like any other typed value instead of panicking on a nil
// payload.
func NewNull(vt *VTable) *Value {
	v := &Value{vt: vt, Null: true}
	if vt != nil {
		v.payload = vt.Zero()
	}
	return v
}

// IsTyped reports whether this value has been typified.
func (v *Value) IsTyped() bool { return v.vt != nil }

// Type returns the v-table of a typed value, or nil if untyped.
func (v *Value) Type() *VTable { return v.vt }

// Reset clears a value back to empty/untyped, preserving its type if typed.
func (v *Value) Reset() {
	v.Null = false
	if v.vt != nil {
		v.payload = v.vt.Zero()
	} else {
		v.names = nil
	}
}

// Typify converts an untyped value in place to the given type, consuming its
// Names payload exactly once. Once typified a value's type is immutable;
// calling Typify again on an already-typed value is an error.
func (v *Value) Typify(vt *VTable) error {
	if v.vt != nil {
		return fmt.Errorf("value is already typed as %s", v.vt.TypeName)
	}
	payload, err := vt.AssignFromNames(v.names)
	if err != nil {
		return err
	}
	v.vt = vt
	v.payload = payload
	v.names = nil
	v.Null = false
	return nil
}

// Assign replaces the value's content with names, type-converting through
// the v-table if typed.
func (v *Value) Assign(names Names) error {
	v.Null = false
	if v.vt == nil {
		v.names = names
		return nil
	}
	payload, err := v.vt.AssignFromNames(names)
	if err != nil {
		return err
	}
	v.payload = payload
	return nil
}

// Append concatenates names-derived content onto the value. On an untyped
// value this is plain sequence concatenation; on a typed value it dispatches
// through the v-table, which may refuse (AppendNotSupportedError).
func (v *Value) Append(names Names) error {
	if len(names) == 0 {
		return nil // appending empty names is always a no-op, even for null values.
	}
	v.Null = false
	if v.vt == nil {
		v.names = append(v.names, names...)
		return nil
	}
	if v.vt.AppendFromNames == nil {
		return &AppendNotSupportedError{Type: v.vt.TypeName}
	}
	payload, err := v.vt.AppendFromNames(v.payload, names)
	if err != nil {
		return err
	}
	v.payload = payload
	return nil
}

// Prepend is the mirror of Append.
func (v *Value) Prepend(names Names) error {
	if len(names) == 0 {
		return nil
	}
	v.Null = false
	if v.vt == nil {
		v.names = append(append(Names{}, names...), v.names...)
		return nil
	}
	if v.vt.PrependFromNames == nil {
		return &AppendNotSupportedError{Type: v.vt.TypeName, Prepend: true}
	}
	payload, err := v.vt.PrependFromNames(v.payload, names)
	if err != nil {
		return err
	}
	v.payload = payload
	return nil
}

// As returns the value's payload type-asserted to T. The second return is
// false if the value is untyped, null, or holds a different underlying type.
func As[T any](v *Value) (T, bool) {
	var zero T
	if v == nil || v.vt == nil || v.Null {
		return zero, false
	}
	t, ok := v.payload.(T)
	return t, ok
}

// ExtractNames reverses a typed (or untyped) value back to Names.
func (v *Value) ExtractNames() Names {
	if v.vt == nil {
		return append(Names{}, v.names...)
	}
	if v.Null {
		return nil
	}
	return v.vt.ReverseToNames(v.payload)
}

// Copy returns a deep copy of v, safe to mutate independently.
func (v *Value) Copy() *Value {
	cp := &Value{vt: v.vt, Null: v.Null}
	if v.vt == nil {
		cp.names = append(Names{}, v.names...)
	} else {
		cp.payload = v.vt.Copy(v.payload)
	}
	return cp
}

// Empty reports whether the value is empty. A null value is always empty.
func (v *Value) Empty() bool {
	if v.Null {
		return true
	}
	if v.vt == nil {
		return len(v.names) == 0
	}
	return v.vt.Empty(v.payload)
}

// Compare orders two values of the same type. Untyped values compare by
// their rendered Names string. Comparing values of different types panics:
// callers are expected to only compare values known to share a variable's
// type (the pool enforces that a variable's type is fixed once entered).
func Compare(a, b *Value) int {
	if a.vt != b.vt {
		panic("value: comparing values of different types")
	}
	if a.Null != b.Null {
		if a.Null {
			return -1
		}
		return 1
	}
	if a.Null {
		return 0
	}
	if a.vt == nil {
		return compareStrings(a.names.String(), b.names.String())
	}
	return a.vt.Compare(a.payload, b.payload)
}

func compareStrings(a, b string) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

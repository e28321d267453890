package value

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Builtin v-tables for the fixed set of value types named in spec.md §3.
// Application-defined types register their own VTable and are otherwise
// indistinguishable to the core (see RegisterType).

// Bool is the payload type backing BoolType.
type Bool bool

var BoolType = &VTable{
	TypeName: "bool",
	Zero:     func() any { return Bool(false) },
	Copy:     func(p any) any { return p },
	AssignFromNames: func(names Names) (any, error) {
		s := singleToken(names, "bool")
		if s.err != nil {
			return nil, s.err
		}
		b, err := strconv.ParseBool(*s.tok)
		if err != nil {
			return nil, &InvalidValueError{Type: "bool", Name: *s.tok, Cause: err}
		}
		return Bool(b), nil
	},
	ReverseToNames: func(p any) Names { return NamesOf(strconv.FormatBool(bool(p.(Bool)))) },
	Compare: func(a, b any) int {
		x, y := a.(Bool), b.(Bool)
		if x == y {
			return 0
		} else if !x {
			return -1
		}
		return 1
	},
	Empty: func(p any) bool { return false }, // false is a value, not an empty one
}

// Uint64 is the payload type backing Uint64Type.
type Uint64 uint64

var Uint64Type = &VTable{
	TypeName: "uint64",
	Zero:     func() any { return Uint64(0) },
	Copy:     func(p any) any { return p },
	AssignFromNames: func(names Names) (any, error) {
		s := singleToken(names, "uint64")
		if s.err != nil {
			return nil, s.err
		}
		n, err := strconv.ParseUint(*s.tok, 10, 64)
		if err != nil {
			return nil, &InvalidValueError{Type: "uint64", Name: *s.tok, Cause: err}
		}
		return Uint64(n), nil
	},
	ReverseToNames: func(p any) Names { return NamesOf(strconv.FormatUint(uint64(p.(Uint64)), 10)) },
	Compare: func(a, b any) int {
		x, y := a.(Uint64), b.(Uint64)
		if x < y {
			return -1
		} else if x > y {
			return 1
		}
		return 0
	},
	Empty: func(p any) bool { return false }, // a number is never "empty" regardless of its value
}

// String is the payload type backing StringType.
type String string

var StringType = &VTable{
	TypeName: "string",
	Zero:     func() any { return String("") },
	Copy:     func(p any) any { return p },
	AssignFromNames: func(names Names) (any, error) {
		return String(names.String()), nil
	},
	AppendFromNames: func(p any, names Names) (any, error) {
		return String(string(p.(String)) + names.String()), nil
	},
	PrependFromNames: func(p any, names Names) (any, error) {
		return String(names.String() + string(p.(String))), nil
	},
	ReverseToNames: func(p any) Names { return NamesOf(string(p.(String))) },
	Compare: func(a, b any) int {
		return compareStrings(string(a.(String)), string(b.(String)))
	},
	Empty: func(p any) bool { return string(p.(String)) == "" },
}

// Path is the payload type backing PathType: a relative filesystem path.
type Path string

var PathType = &VTable{
	TypeName: "path",
	Zero:     func() any { return Path("") },
	Copy:     func(p any) any { return p },
	AssignFromNames: func(names Names) (any, error) {
		s := names.String()
		if path.IsAbs(s) {
			return nil, &InvalidValueError{Type: "path", Name: s, Cause: fmt.Errorf("expected a relative path")}
		}
		return Path(path.Clean(s)), nil
	},
	AppendFromNames: func(p any, names Names) (any, error) {
		return Path(path.Join(string(p.(Path)), names.String())), nil
	},
	ReverseToNames: func(p any) Names { return NamesOf(string(p.(Path))) },
	Compare: func(a, b any) int {
		return compareStrings(string(a.(Path)), string(b.(Path)))
	},
	Empty: func(p any) bool { return string(p.(Path)) == "" },
}

// Dir is the payload type backing DirType: a relative directory path.
type Dir string

var DirType = &VTable{
	TypeName: "dir",
	Zero:     func() any { return Dir("") },
	Copy:     func(p any) any { return p },
	AssignFromNames: func(names Names) (any, error) {
		s := names.String()
		if path.IsAbs(s) {
			return nil, &InvalidValueError{Type: "dir", Name: s, Cause: fmt.Errorf("expected a relative directory")}
		}
		return Dir(path.Clean(s)), nil
	},
	AppendFromNames: func(p any, names Names) (any, error) {
		return Dir(path.Join(string(p.(Dir)), names.String())), nil
	},
	ReverseToNames: func(p any) Names { return NamesOf(string(p.(Dir))) },
	Compare: func(a, b any) int {
		return compareStrings(string(a.(Dir)), string(b.(Dir)))
	},
	Empty: func(p any) bool { return string(p.(Dir)) == "" || string(p.(Dir)) == "." },
}

// AbsDir is the payload type backing AbsDirType: an absolute directory path.
type AbsDir string

var AbsDirType = &VTable{
	TypeName: "absdir",
	Zero:     func() any { return AbsDir("/") },
	Copy:     func(p any) any { return p },
	AssignFromNames: func(names Names) (any, error) {
		s := names.String()
		if !path.IsAbs(s) {
			return nil, &InvalidValueError{Type: "absdir", Name: s, Cause: fmt.Errorf("expected an absolute directory")}
		}
		return AbsDir(filepath.Clean(s)), nil
	},
	ReverseToNames: func(p any) Names { return NamesOf(string(p.(AbsDir))) },
	Compare: func(a, b any) int {
		return compareStrings(string(a.(AbsDir)), string(b.(AbsDir)))
	},
	Empty: func(p any) bool { return false }, // an absolute directory is never empty by construction
}

// ProcessPath is the payload type for ProcessPathType: a @-pair of
// (logical name, actual executable path), e.g. "python@/usr/bin/python3".
type ProcessPath struct {
	Name string
	Path string
}

var ProcessPathType = &VTable{
	TypeName: "process_path",
	Zero:     func() any { return ProcessPath{} },
	Copy:     func(p any) any { return p },
	AssignFromNames: func(names Names) (any, error) {
		if len(names) != 1 {
			return nil, &InvalidValueError{Type: "process_path", Name: names.String(), Cause: fmt.Errorf("expected a single name or name pair")}
		}
		n := names[0]
		if n.Pair == nil {
			return ProcessPath{Name: n.Simple, Path: n.Simple}, nil
		}
		return ProcessPath{Name: n.Simple, Path: *n.Pair}, nil
	},
	ReverseToNames: func(p any) Names {
		pp := p.(ProcessPath)
		if pp.Name == pp.Path {
			return NamesOf(pp.Name)
		}
		return Names{{Simple: pp.Name, Pair: &pp.Path}}
	},
	Compare: func(a, b any) int {
		x, y := a.(ProcessPath), b.(ProcessPath)
		return compareStrings(x.Name+"@"+x.Path, y.Name+"@"+y.Path)
	},
	Empty: func(p any) bool { return p.(ProcessPath).Path == "" },
}

// NamePair is the payload type for NamePairType: two names joined by @.
type NamePair struct {
	First, Second string
}

var NamePairType = &VTable{
	TypeName: "name_pair",
	Zero:     func() any { return NamePair{} },
	Copy:     func(p any) any { return p },
	AssignFromNames: func(names Names) (any, error) {
		if len(names) != 1 || names[0].Pair == nil {
			return nil, &InvalidValueError{Type: "name_pair", Name: names.String(), Cause: fmt.Errorf("expected a single name@name pair")}
		}
		return NamePair{First: names[0].Simple, Second: *names[0].Pair}, nil
	},
	ReverseToNames: func(p any) Names {
		np := p.(NamePair)
		return Names{{Simple: np.First, Pair: &np.Second}}
	},
	Compare: func(a, b any) int {
		x, y := a.(NamePair), b.(NamePair)
		return compareStrings(x.First+"@"+x.Second, y.First+"@"+y.Second)
	},
	Empty: func(p any) bool { return p.(NamePair).First == "" },
}

// NameType backs plain (unpaired) name values -- distinct from a string in
// that it is never escaped/quoted; it's the raw buildfile identifier form.
var NameType = &VTable{
	TypeName: "name",
	Zero:     func() any { return "" },
	Copy:     func(p any) any { return p },
	AssignFromNames: func(names Names) (any, error) {
		if len(names) != 1 {
			return nil, &InvalidValueError{Type: "name", Name: names.String(), Cause: fmt.Errorf("expected exactly one name")}
		}
		return names[0].Simple, nil
	},
	ReverseToNames: func(p any) Names { return NamesOf(p.(string)) },
	Compare:        func(a, b any) int { return compareStrings(a.(string), b.(string)) },
	Empty:          func(p any) bool { return p.(string) == "" },
}

// SequenceOf constructs a v-table for "sequence of T" given T's v-table,
// implementing the "sequences of these" clause of spec.md §3. Append and
// prepend are always supported for sequences regardless of the element
// type's own append/prepend support, since concatenation is well defined
// for any sequence.
func SequenceOf(elem *VTable) *VTable {
	name := "[" + elem.TypeName + "]"
	toElems := func(names Names) ([]any, error) {
		var out []any
		for _, n := range names {
			v, err := elem.AssignFromNames(Names{n})
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return &VTable{
		TypeName: name,
		Zero:     func() any { return []any(nil) },
		Copy: func(p any) any {
			src := p.([]any)
			out := make([]any, len(src))
			for i, v := range src {
				out[i] = elem.Copy(v)
			}
			return out
		},
		AssignFromNames: func(names Names) (any, error) { return toElems(names) },
		AppendFromNames: func(p any, names Names) (any, error) {
			more, err := toElems(names)
			if err != nil {
				return nil, err
			}
			return append(append([]any{}, p.([]any)...), more...), nil
		},
		PrependFromNames: func(p any, names Names) (any, error) {
			more, err := toElems(names)
			if err != nil {
				return nil, err
			}
			return append(more, p.([]any)...), nil
		},
		ReverseToNames: func(p any) Names {
			var out Names
			for _, v := range p.([]any) {
				out = append(out, elem.ReverseToNames(v)...)
			}
			return out
		},
		Compare: func(a, b any) int {
			x, y := a.([]any), b.([]any)
			for i := 0; i < len(x) && i < len(y); i++ {
				if c := elem.Compare(x[i], y[i]); c != 0 {
					return c
				}
			}
			return len(x) - len(y)
		},
		Empty: func(p any) bool { return len(p.([]any)) == 0 },
	}
}

// registry of every registered type, builtin and application-defined, keyed
// by name, guarded implicitly
// by load-phase-only registration discipline (see pool.go).
var registry = map[string]*VTable{
	BoolType.TypeName:        BoolType,
	Uint64Type.TypeName:      Uint64Type,
	StringType.TypeName:      StringType,
	PathType.TypeName:        PathType,
	DirType.TypeName:         DirType,
	AbsDirType.TypeName:      AbsDirType,
	NameType.TypeName:        NameType,
	NamePairType.TypeName:    NamePairType,
	ProcessPathType.TypeName: ProcessPathType,
}

// RegisterType registers an application-defined value type (spec.md §3:
// "...and application-defined types"). Re-registering an existing name
// panics, matching the immutable-once-entered discipline of variable types.
func RegisterType(vt *VTable) {
	if _, present := registry[vt.TypeName]; present {
		panic("value: type " + vt.TypeName + " already registered")
	}
	registry[vt.TypeName] = vt
}

// LookupType returns a registered type (builtin or application-defined) by name.
func LookupType(name string) (*VTable, bool) {
	vt, ok := registry[name]
	return vt, ok
}

type tokenOrErr struct {
	tok *string
	err error
}

func singleToken(names Names, typeName string) *tokenOrErr {
	if len(names) != 1 {
		s := names.String()
		return &tokenOrErr{err: &InvalidValueError{Type: typeName, Name: s, Cause: fmt.Errorf("expected exactly one token")}}
	}
	s := names[0].Simple
	return &tokenOrErr{tok: &s}
}

// sortedTypeNames is used by diagnostics that want a stable listing of
// registered types (e.g. "unknown type X, known types are: ...").
func sortedTypeNames() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UnknownTypeError is returned when a pattern or variable names a type that
// isn't registered.
type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown value type %q (known: %s)", e.Name, strings.Join(sortedTypeNames(), ", "))
}

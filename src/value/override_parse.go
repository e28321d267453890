package value

import (
	"fmt"
	"strings"
)

// CLIOverride is one parsed command-line variable override, per the BNF in
// spec.md §6:
//
//	override := [qualifier] name op value
//	qualifier := '!' | '%' | '/' | directory '/'
//	op        := '=' | '+=' | '=+'
type CLIOverride struct {
	Visibility Visibility
	Directory  string // set when qualifier was a directory prefix (implies scope visibility)
	Name       string
	Kind       OverrideKind
	Raw        string // the escaped value exactly as typed, before Unescape
}

// Unescape processes the value's escaping rules (spec.md §6: `' " \ $ (`):
// each of those five characters may be backslash-escaped to appear
// literally; any other
// backslash sequence is left untouched (so e.g. Windows-style paths survive
// unmolested).
func (o CLIOverride) Unescape() string {
	var b strings.Builder
	s := o.Raw
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.ContainsRune(`'"\$(`, rune(s[i+1])) {
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ParseCLIOverride parses a single command-line override string. Target-
// specific overrides (`target:var=...`) are reserved syntax but
// unimplemented, matching spec.md §6 exactly: we recognize the colon and
// report a distinct "reserved" error rather than silently mis-parsing it.
func ParseCLIOverride(s string) (CLIOverride, error) {
	var o CLIOverride
	o.Visibility = VisibilityScope // default: scope-visible, no directory qualifier
	rest := s

	switch {
	case strings.HasPrefix(rest, "!"):
		o.Visibility = VisibilityGlobal
		rest = rest[1:]
	case strings.HasPrefix(rest, "%"):
		o.Visibility = VisibilityProject
		rest = rest[1:]
	default:
		// A '/' before the first operator ends a qualifier: everything up to
		// the last such slash is the directory, so multi-segment and absolute
		// directories stay whole, and a lone leading '/' leaves Directory
		// empty (plain scope visibility).
		end := firstOpIndex(rest)
		if end == -1 {
			end = len(rest)
		}
		if idx := strings.LastIndexByte(rest[:end], '/'); idx != -1 {
			o.Directory = rest[:idx]
			o.Visibility = VisibilityScope
			rest = rest[idx+1:]
		}
	}

	opIdx := firstOpIndex(rest)
	if opIdx == -1 {
		return o, fmt.Errorf("invalid override %q: missing assignment operator", s)
	}
	name := rest[:opIdx]
	if name == "" {
		return o, fmt.Errorf("invalid override %q: missing variable name", s)
	}
	if strings.ContainsRune(name, ':') {
		return o, fmt.Errorf("invalid override %q: target-specific overrides (target:var=...) are reserved but unimplemented", s)
	}
	o.Name = name

	opLen, kind := matchOp(rest[opIdx:])
	o.Kind = kind
	o.Raw = rest[opIdx+opLen:]
	return o, nil
}

// firstOpIndex finds the earliest occurrence of one of the three operators,
// preferring the two-character forms when they start at the same index.
func firstOpIndex(s string) int {
	best := -1
	for i := 0; i < len(s); i++ {
		if s[i] != '=' && s[i] != '+' {
			continue
		}
		if _, ok := tryOp(s[i:]); ok {
			return i
		}
	}
	return best
}

func tryOp(s string) (string, bool) {
	switch {
	case strings.HasPrefix(s, "+="):
		return "+=", true
	case strings.HasPrefix(s, "=+"):
		return "=+", true
	case strings.HasPrefix(s, "="):
		return "=", true
	}
	return "", false
}

func matchOp(s string) (length int, kind OverrideKind) {
	op, _ := tryOp(s)
	switch op {
	case "+=":
		return 2, OverrideSuffix
	case "=+":
		return 2, OverridePrefix
	default:
		return 1, OverrideReplace
	}
}

// ValidateOverride enforces the three rejection rules of spec.md §4.1
// against existing, the variable the override names as already interned in
// the caller's pool (nil if it is not interned yet).
func ValidateOverride(o CLIOverride, existing *Variable, newValueTyped bool) error {
	if existing != nil && !existing.Overridable {
		return fmt.Errorf("variable %s is not overridable", o.Name)
	}
	if existing != nil && existing.Type == nil && newValueTyped {
		return fmt.Errorf("cannot introduce a typed override on untyped variable %s", o.Name)
	}
	if o.Directory != "" && o.Visibility == VisibilityGlobal {
		return fmt.Errorf("cannot apply directory qualification to global-visibility override %s", o.Name)
	}
	return nil
}

// Package graph implements the target/prerequisite graph: target keys,
// target types, the process-wide deduplicated target set, and ad hoc group
// membership (spec.md §3 "Targets", §4.3).
package graph

import (
	"fmt"
	"strings"
)

// Key is the five-tuple that uniquely identifies a target within a context
// (spec.md §3, Invariant 1): (target type, out directory, src-relative
// directory, base name, optional extension).
type Key struct {
	Type    *Type
	OutDir  string
	SrcDir  string
	Name    string
	Ext     string // "" means absent/unspecified, distinct from an explicit "no extension"
	NoExt   bool   // true when the extension was explicitly declared absent (e.g. "foo.")
}

// String renders the key in the `[dir/]type{name[.ext]}[@out]` form of
// spec.md §6, re-escaping dots so the result round-trips through Parse.
func (k Key) String() string {
	var b strings.Builder
	if k.SrcDir != "" {
		b.WriteString(k.SrcDir)
		b.WriteByte('/')
	}
	b.WriteString(k.Type.Name)
	b.WriteByte('{')
	b.WriteString(escapeName(k.Name, k.Ext, k.NoExt))
	b.WriteByte('}')
	if k.OutDir != "" && k.OutDir != k.SrcDir {
		b.WriteByte('@')
		b.WriteString(k.OutDir)
	}
	return b.String()
}

// escapeName applies the disambiguation rules of spec.md §6 in reverse: given
// a parsed (name, ext, noExt) triple, produce the name{...} text that would
// re-parse to exactly that triple.
func escapeName(name, ext string, noExt bool) string {
	if ext != "" {
		// If name itself contains a literal dot, it must be protected with
		// the "..", since a single dot would otherwise be read as the
		// extension separator.
		return strings.ReplaceAll(name, ".", "..") + "..." + ext
	}
	if noExt {
		if strings.ContainsRune(name, '.') {
			return strings.ReplaceAll(name, ".", "..")
		}
		return name + "."
	}
	// Extension unspecified (default applies): a name containing a dot is
	// escaped and closed with "...", since a bare dot would otherwise be
	// read as the extension separator.
	if strings.ContainsRune(name, '.') {
		return strings.ReplaceAll(name, ".", "..") + "..."
	}
	return name
}

// ParseNameExt splits the `name[.ext]` portion of a target key string per
// the disambiguation rules of spec.md §6:
//
//	foo..bar  -> ".." escapes a literal dot: base "foo.bar", no extension
//	foo...bar -> "..." is the extension separator: base "foo", ext "bar"
//	foo...    -> trailing "..." means extension unspecified
//	foo.      -> trailing "." means explicitly no extension
//	otherwise -> the rightmost single dot is the extension separator
func ParseNameExt(s string) (name, ext string, noExt bool, err error) {
	if s == "" {
		return "", "", false, fmt.Errorf("empty target name")
	}
	switch {
	case strings.HasSuffix(s, "..."):
		// Trailing triple-dot: extension left unspecified (default applies).
		return unescapeDots(s[:len(s)-3]), "", false, nil
	case strings.Contains(s, "..."):
		// Triple-dot separates an explicit base and extension.
		idx := strings.Index(s, "...")
		return unescapeDots(s[:idx]), s[idx+3:], false, nil
	case strings.Contains(s, ".."):
		// A ".." anywhere (outside the "..." cases above) escapes a literal
		// dot: the whole name is unescaped and carries no extension.
		return unescapeDots(s), "", true, nil
	case strings.HasSuffix(s, "."):
		// Trailing single dot: explicitly no extension.
		return s[:len(s)-1], "", true, nil
	default:
		if idx := strings.LastIndex(s, "."); idx != -1 {
			return s[:idx], s[idx+1:], false, nil // rightmost single dot separates the extension
		}
		return s, "", false, nil
	}
}

func unescapeDots(s string) string { return strings.ReplaceAll(s, "..", ".") }

// ParseKey parses the full `[dir/]type{name[.ext]}[@out]` form of spec.md §6
// against the process's registered target types. dir, when present, is used
// as both SrcDir and OutDir unless an explicit `@out` suffix overrides the
// latter.
func ParseKey(s string) (Key, error) {
	open := strings.IndexByte(s, '{')
	if open == -1 {
		return Key{}, fmt.Errorf("invalid target key %q: missing '{'", s)
	}
	close := strings.LastIndexByte(s, '}')
	if close == -1 || close < open {
		return Key{}, fmt.Errorf("invalid target key %q: missing '}'", s)
	}

	dir := s[:open]
	typeName := s[:open]
	if idx := strings.LastIndexByte(dir, '/'); idx != -1 {
		dir = dir[:idx]
		typeName = typeName[idx+1:]
	} else {
		dir = ""
	}

	tt, ok := LookupType(typeName)
	if !ok {
		return Key{}, fmt.Errorf("invalid target key %q: unknown target type %q", s, typeName)
	}

	body := s[open+1 : close]
	out := dir
	if after := s[close+1:]; after != "" {
		if !strings.HasPrefix(after, "@") {
			return Key{}, fmt.Errorf("invalid target key %q: unexpected trailing %q", s, after)
		}
		out = after[1:]
	}

	name, ext, noExt, err := ParseNameExt(body)
	if err != nil {
		return Key{}, fmt.Errorf("invalid target key %q: %w", s, err)
	}
	return Key{Type: tt, OutDir: out, SrcDir: dir, Name: name, Ext: ext, NoExt: noExt}, nil
}

package dyndep

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// PrefixValue is one entry of a PrefixMap: the directory a prefix maps to,
// and the priority that breaks ties between competing mappings for the same
// prefix (lower wins; equal priorities keep insertion order). Grounded on
// dyndep.cxx's prefix_value.
type PrefixValue struct {
	Directory string
	Priority  int
}

type prefixEntry struct {
	value PrefixValue
	seq   int
}

// PrefixMap maps an include-directory prefix (e.g. "foo" for `#include
// <foo/bar.h>`) to the directory tree an auto-generated header with that
// prefix should be looked up under. Unlike a plain map, the empty
// ("prefixless") key keeps every entry ever added for it rather than just
// the best one, since prefixless mappings need an extra existence check at
// use time (spec.md §4.6; dyndep.cxx append_prefix's "for them we have an
// extra check" comment). Safe for concurrent use: a rule can discover and
// register prefixes from several goroutines during match.
type PrefixMap struct {
	mu      sync.Mutex
	entries map[string][]prefixEntry
	seq     int
}

// NewPrefixMap returns an empty prefix map.
func NewPrefixMap() *PrefixMap {
	return &PrefixMap{entries: map[string][]prefixEntry{}}
}

// Append registers targetDir (the directory a target lives in) against
// includeDir (the -I style search path it was found under), entering not
// just the exact prefix but every outer directory of it too, with
// increasing priority, the way dyndep.cxx's append_prefix walks p.directory()
// up to the root. This is what lets "library is in foo/, poptions has -Itmp"
// resolve auto-magically for `#include <foo/bar.h>`.
func (m *PrefixMap) Append(targetDir, includeDir string) {
	var prefix string
	if rel, err := filepath.Rel(includeDir, targetDir); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
		prefix = filepath.ToSlash(rel)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prio := 0
	for {
		m.enter(prefix, includeDir, prio)
		if prefix == "" {
			break
		}
		prefix = parentDir(prefix)
		prio++
	}
}

func parentDir(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}

// enter applies dyndep.cxx append_prefix's enter() merge rule: first
// mapping for a prefix wins outright; the empty prefix accumulates every
// mapping in priority (then insertion) order; any other prefix keeps the
// lower-priority mapping, breaking exact ties in favour of the existing one.
func (m *PrefixMap) enter(prefix, dir string, prio int) {
	existing := m.entries[prefix]

	if prefix == "" {
		m.seq++
		existing = append(existing, prefixEntry{value: PrefixValue{Directory: dir, Priority: prio}, seq: m.seq})
		sort.SliceStable(existing, func(i, j int) bool {
			if existing[i].value.Priority != existing[j].value.Priority {
				return existing[i].value.Priority < existing[j].value.Priority
			}
			return existing[i].seq < existing[j].seq
		})
		m.entries[prefix] = existing
		return
	}

	if len(existing) == 0 {
		m.seq++
		m.entries[prefix] = []prefixEntry{{value: PrefixValue{Directory: dir, Priority: prio}, seq: m.seq}}
		return
	}

	cur := existing[0]
	switch {
	case cur.value.Directory == dir:
		if cur.value.Priority > prio {
			cur.value.Priority = prio
			existing[0] = cur
		}
	case cur.value.Priority <= prio:
		// keep existing, ignore new mapping
	default:
		m.seq++
		existing[0] = prefixEntry{value: PrefixValue{Directory: dir, Priority: prio}, seq: m.seq}
	}
	m.entries[prefix] = existing
}

// SupRange returns every mapping registered for the most qualified prefix of
// which dir is a sub-path (itself included), in priority/insertion order, or
// nil if no prefix (including the prefixless entry) matches. Grounded on
// dyndep.cxx's use of prefix_map::sup_range.
func (m *PrefixMap) SupRange(dir string) []PrefixValue {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := dir
	for {
		if es, ok := m.entries[d]; ok {
			out := make([]PrefixValue, len(es))
			for i, e := range es {
				out[i] = e.value
			}
			return out
		}
		if d == "" {
			return nil
		}
		d = parentDir(d)
	}
}

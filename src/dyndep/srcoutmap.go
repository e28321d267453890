package dyndep

import (
	"sort"
	"strings"
	"sync"
)

// SrcOutMap remaps a path under a project's src tree to the corresponding
// path under its out tree for an out-of-source build, so a dynamically
// discovered dependency reported in terms of the source file (e.g. by a
// compiler's generated depfile) can still be matched against the generated
// target ("ts" in spec.md §4.6: "used when one prerequisite must exist as a
// file on disk to make sense of a generated file the includer can be
// scanned"). Grounded on dyndep.cxx's srcout_map / srcout_builder.
type SrcOutMap struct {
	mu      sync.Mutex
	entries map[string]string
	keys    []string // sorted longest-first for FindSup's linear scan
}

// NewSrcOutMap returns an empty map.
func NewSrcOutMap() *SrcOutMap {
	return &SrcOutMap{entries: map[string]string{}}
}

// Add registers src (a src-tree directory) as corresponding to out (the
// matching out-tree directory).
func (m *SrcOutMap) Add(src, out string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[src]; !exists {
		m.keys = append(m.keys, src)
		sort.Slice(m.keys, func(i, j int) bool { return len(m.keys[i]) > len(m.keys[j]) })
	}
	m.entries[src] = out
}

// FindSup returns the out-tree directory for the most qualified src-tree
// prefix of which path is a sub-path, and the matched src prefix itself, or
// ("", "", false) if none matches. Grounded on dyndep.cxx's so_map.find_sup.
func (m *SrcOutMap) FindSup(path string) (srcPrefix, out string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if path == k || strings.HasPrefix(path, k+"/") {
			return k, m.entries[k], true
		}
	}
	return "", "", false
}

// Empty reports whether the map has no entries, the fast path
// enter_file_impl takes to skip remap lookups entirely.
func (m *SrcOutMap) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries) == 0
}

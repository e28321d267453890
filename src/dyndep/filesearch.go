package dyndep

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"

	"github.com/build2/build2-sub005/src/graph"
)

// errFound halts a FileSearch walk as soon as a match turns up, since
// godirwalk has no built-in "stop everything" signal short of returning an
// error from the callback.
var errFound = errors.New("dyndep: file found")

// MapExtension narrows candidates to the target types, among tts (or every
// registered type that has a Base, if tts is nil), whose DefaultExtension matches ext for a
// file named name. Multiple candidates mean the extension is genuinely
// ambiguous (e.g. ".h" claimed by both a C and a C++ header type) and the
// caller must resolve it some other way (typically: prefer an explicit
// target already in the graph). Grounded on dyndep.cxx map_extension, but
// simplified around this core's flat Type.DefaultExtension closure instead
// of build2's target_type_map walk.
func MapExtension(tts []*graph.Type, name, ext string) []*graph.Type {
	test := func(tt *graph.Type) bool {
		if tt.DefaultExtension == nil {
			return false
		}
		return tt.DefaultExtension() == ext
	}

	var out []*graph.Type
	if tts != nil {
		for _, tt := range tts {
			if test(tt) {
				out = append(out, tt)
			}
		}
		return out
	}

	for _, tt := range graph.AllTypes() {
		if tt.Base != nil && test(tt) {
			out = append(out, tt)
		}
	}
	return out
}

// FileSearch locates an existing on-disk file matching name under dir, for
// target types whose Type.Search hook is nil (no registered "find an
// existing file of this type" logic), by walking the directory tree with
// godirwalk. Grounded on please's use of godirwalk for fast package-tree
// scans, adapted here as dyndep's fallback when a hinted type's
// FixedExtension lookup misses the type registry's own Search hook.
func FileSearch(dir, name string) (string, bool, error) {
	var found string
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			base := filepath.Base(path)
			if base == name || strings.TrimSuffix(base, filepath.Ext(base)) == name {
				found = path
				return errFound
			}
			return nil
		},
		Unsorted: true,
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", false, err
	}
	return found, found != "", nil
}

package diag

import (
	"fmt"
	"sort"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// maxSuggestionDistance bounds how different a candidate name can be from
// the one that failed to resolve before it stops being worth suggesting.
const maxSuggestionDistance = 3

// SuggestNames returns a "maybe you meant X, Y or Z ?" string for the
// candidates closest (by Levenshtein distance) to name, or "" if none is
// close enough. Grounded near-verbatim on please's src/parse/suggest.go
// (suggestTargets), retargeted at arbitrary name candidates (target keys,
// rule names, variable names) instead of package-local target names.
func SuggestNames(name string, candidates []string) string {
	r := []rune(name)
	options := make(suggestionList, 0, len(candidates))
	for _, c := range candidates {
		d := levenshtein.DistanceForStrings(r, []rune(c), levenshtein.DefaultOptions)
		if d <= maxSuggestionDistance {
			options = append(options, suggestion{name: c, dist: d})
		}
	}
	if len(options) == 0 {
		return ""
	}
	sort.Sort(options)

	msg := "maybe you meant "
	for i, o := range options {
		if i > 0 {
			if i < len(options)-1 {
				msg += ", "
			} else {
				msg += " or "
			}
		}
		msg += o.name
	}
	return fmt.Sprintf("%s ?", msg)
}

type suggestion struct {
	name string
	dist int
}

type suggestionList []suggestion

func (s suggestionList) Len() int           { return len(s) }
func (s suggestionList) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s suggestionList) Less(i, j int) bool { return s[i].dist < s[j].dist }

package dyndep

import (
	"time"

	"github.com/build2/build2-sub005/src/graph"
	"github.com/build2/build2-sub005/src/match"
)

// UpdateDuringMatch runs pt's recipe synchronously, right now, from inside
// another target's own match step, rather than waiting for the normal
// execute phase to reach it. This is what makes dyndep's "generated header"
// story work at all: a rule scanning its own inputs for `#include`s needs
// the generated header to already exist *before* its own apply finishes, so
// it borrows the engine's update path instead of adding a regular
// prerequisite edge and waiting. Grounded on dyndep.cxx's dyndep_rule::update
// (itself a thin forward to update_during_match) and spec.md §4.6's "update
// hook that may need to run a prerequisite's recipe synchronously".
func UpdateDuringMatch(eng Engine, a match.Action, pt *graph.Target, since time.Time) (bool, error) {
	return eng.Update(a, pt, since)
}

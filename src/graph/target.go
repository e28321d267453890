package graph

import (
	"sync/atomic"

	"github.com/build2/build2-sub005/src/value"
)

// OpState is a target's progress through the match/execute pipeline for one
// action, per spec.md §4.5: touched -> tried -> matched -> applied ->
// executed. Failed is a terminal state reachable from tried or later.
type OpState int32

const (
	StateTouched OpState = iota
	StateTried
	StateMatched
	StateApplied
	StateExecuted
	StateFailed
)

func (s OpState) String() string {
	switch s {
	case StateTouched:
		return "touched"
	case StateTried:
		return "tried"
	case StateMatched:
		return "matched"
	case StateApplied:
		return "applied"
	case StateExecuted:
		return "executed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MaxActions bounds the number of distinct actions (update, clean, test, ...)
// a target can be driven through concurrently. Kept small and fixed so each
// opstate slot is a plain atomic word rather than a map needing its own lock.
const MaxActions = 4

// DeclLevel records how a target came to exist in the graph (spec.md §4.3):
// an explicit buildfile rule, a target implied by another rule's outputs, or
// an ad hoc target synthesised from a bare filename with no declaration.
type DeclLevel int

const (
	DeclExplicit DeclLevel = iota
	DeclImplicit
	DeclAdhoc
)

// Target is one node of the target/prerequisite graph. Its opstate fields
// are accessed without t.mu so match/apply/execute can race on the CAS
// itself (spec.md §4.5: "the common case is lock-free"); everything else
// (prerequisite accumulation, group membership) goes through mu.
type Target struct {
	Key  Key
	Vars *value.Pool

	DeclLevel DeclLevel

	// Group is set when this target is a member of an ad hoc group; it is a
	// non-owning back-reference (spec.md §4.3, "group<->member back
	// references are non-owning pointers").
	Group *Group

	mu             targetMu
	prerequisites  []*Target
	prereqAdhoc    []bool
	actionStates   []*ActionState

	// opstates holds one packed (generation, OpState) word per action index.
	// The generation lets a new phase mutex cycle invalidate state left over
	// from a previous build without zeroing every target explicitly.
	opstates [MaxActions]int32
}

// NewTarget constructs an empty target of the given key, ready to be
// inserted into a Set.
func NewTarget(key Key, level DeclLevel) *Target {
	return &Target{Key: key, Vars: value.NewPool(), DeclLevel: level}
}

func packOp(gen int32, s OpState) int32 { return gen<<8 | int32(s) }
func unpackOp(w int32) (gen int32, s OpState) { return w >> 8, OpState(w & 0xff) }

// OpState returns the target's current state for action under generation
// gen. A target whose stored generation doesn't match gen reports
// StateTouched, the effect a fresh phase cycle has on stale per-target state.
func (t *Target) OpState(action int, gen int32) OpState {
	storedGen, s := unpackOp(atomic.LoadInt32(&t.opstates[action]))
	if storedGen != gen {
		return StateTouched
	}
	return s
}

// AdvanceOpState attempts to move action's state from before to after within
// generation gen via a single CAS (spec.md §4.5). It returns false if
// another goroutine already advanced it, or if the target's effective state
// (per OpState's generation-mismatch rule) isn't before to begin with.
//
// A target's stored word always starts at its Go zero value (generation 0,
// StateTouched) regardless of what generation is actually current, so a CAS
// can't simply compare against packOp(gen, before): the very first advance
// of a fresh target under any gen != 0 would never match. Instead this loads
// the raw word, derives its effective state the same way OpState does (a
// generation mismatch reads as StateTouched), and only then attempts the CAS
// from that raw word -- retrying if another goroutine raced in between.
func (t *Target) AdvanceOpState(action int, gen int32, before, after OpState) bool {
	for {
		raw := atomic.LoadInt32(&t.opstates[action])
		storedGen, s := unpackOp(raw)
		effective := s
		if storedGen != gen {
			effective = StateTouched
		}
		if effective != before {
			return false
		}
		if atomic.CompareAndSwapInt32(&t.opstates[action], raw, packOp(gen, after)) {
			return true
		}
	}
}

// ResetOpState reinitialises action's state to StateTouched under a new
// generation, invalidating any CAS racing against the old one.
func (t *Target) ResetOpState(action int, gen int32) {
	atomic.StoreInt32(&t.opstates[action], packOp(gen, StateTouched))
}

// AddPrerequisite appends p to the post-hoc prerequisite list if it isn't
// already present (spec.md §4.5: "post-hoc prerequisites accumulated under a
// mutex and re-iterated to a fixed point" during apply/dyndep injection).
// adhoc marks p as dynamically discovered (via src/dyndep) rather than
// statically declared in a buildfile, the distinction IsAdhocPrerequisite
// reports back.
func (t *Target) AddPrerequisite(p *Target, adhoc bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.prerequisites {
		if existing == p {
			if adhoc {
				t.prereqAdhoc[i] = true
			}
			return
		}
	}
	t.prerequisites = append(t.prerequisites, p)
	t.prereqAdhoc = append(t.prereqAdhoc, adhoc)
}

// IsAdhocPrerequisite reports whether p was added to t's prerequisite list
// via dynamic dependency injection rather than static declaration. Returns
// false for a p not present in the list at all.
func (t *Target) IsAdhocPrerequisite(p *Target) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.prerequisites {
		if existing == p {
			return t.prereqAdhoc[i]
		}
	}
	return false
}

// UpgradeDeclLevel raises the target's declaration level if level is more
// specific than its current one (DeclExplicit beats DeclImplicit beats
// DeclAdhoc -- lower enum value wins) and never downgrades a target that
// was already seen at a more specific level.
func (t *Target) UpgradeDeclLevel(level DeclLevel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if level < t.DeclLevel {
		t.DeclLevel = level
	}
}

// Prerequisites returns a snapshot of the target's prerequisite list.
func (t *Target) Prerequisites() []*Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Target{}, t.prerequisites...)
}

// PrerequisiteCount reports the current prerequisite count, used by callers
// iterating post-hoc injection to a fixed point (no change in count across a
// pass means injection has stabilised).
func (t *Target) PrerequisiteCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.prerequisites)
}

func (t *Target) String() string { return t.Key.String() }

// rekey overwrites t.Key, used by Set.InsertOrGet when a target first
// inserted under an extension-absent key is promoted to the concrete
// extension a later request supplies (spec.md §4.3).
func (t *Target) rekey(k Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Key = k
}

// ActionState holds the per-action bookkeeping spec.md:119-121 requires
// beyond the bare opstate word: the rule that matched, the recipe it
// produced, the resolved prerequisite-target list apply computed for this
// action (which may differ from the static Prerequisites() list once
// include-filters and dyndep injection are applied), and how many of those
// prerequisites update recursively touched. MatchedRule and Recipe are
// opaque (src/match, which owns their concrete types, imports src/graph, so
// graph cannot name them directly without a cycle); callers type-assert.
type ActionState struct {
	MatchedRule     any
	Recipe          any
	Prerequisites   []*Target
	DependencyCount int
}

// actionStates is guarded by t.mu alongside the rest of Target's mutable
// bookkeeping; indexed by the same action index opstates uses.
//
// Kept as a slice rather than a [MaxActions]ActionState array so a target
// that never matches most actions doesn't pay for slots it never touches.
func (t *Target) ensureActionStates() {
	if t.actionStates == nil {
		t.actionStates = make([]*ActionState, MaxActions)
	}
}

// ActionState returns action's per-action state, allocating an empty one on
// first access.
func (t *Target) ActionState(action int) *ActionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureActionStates()
	if t.actionStates[action] == nil {
		t.actionStates[action] = &ActionState{}
	}
	return t.actionStates[action]
}

// SetActionState replaces action's per-action state wholesale, used once
// match/apply has computed the resolved rule, recipe and prerequisite list
// for this action.
func (t *Target) SetActionState(action int, st *ActionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureActionStates()
	t.actionStates[action] = st
}

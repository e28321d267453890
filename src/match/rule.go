package match

import (
	"sync"

	"github.com/build2/build2-sub005/src/graph"
	"github.com/build2/build2-sub005/src/scope"
)

// Rule is one matching rule for a (target type, action) pair, per spec.md
// §4.5 "Rules". Match decides whether the rule applies to t for a; it must
// be side-effect-free and safe to call speculatively against several
// candidate rules. Apply commits to the match and returns the Recipe that
// will later execute.
type Rule interface {
	Match(a Action, t *graph.Target) (bool, error)
	Apply(a Action, t *graph.Target) (Recipe, error)
}

// entry pairs a registered rule with the name it was registered under, so
// diagnostics can report which rule matched (or was tried and declined).
type entry struct {
	name string
	rule Rule
}

// RuleSet holds the rules registered against one scope for a given target
// type and action, keyed the way build2's rule_map nests: scope -> target
// type -> action -> ordered candidates. Candidates are tried in
// registration order, matching spec.md §4.5's "first matching rule wins,
// ties broken by registration order".
type RuleSet struct {
	mu      sync.RWMutex
	entries map[key][]entry
}

type key struct {
	targetType *graph.Type
	action     Action
}

// NewRuleSet constructs an empty rule set; RuleRegistry.For keeps one per
// scope.
func NewRuleSet() *RuleSet {
	return &RuleSet{entries: map[key][]entry{}}
}

// Register appends rule under name for every (tt, a) pair. Registering the
// same name twice for the same (tt, a) is an error, mirroring build2's
// "rule already registered" diagnostic.
func (rs *RuleSet) Register(name string, tt *graph.Type, a Action, rule Rule) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	k := key{tt, a}
	for _, e := range rs.entries[k] {
		if e.name == name {
			return duplicateRuleError{name: name, targetType: tt.Name}
		}
	}
	rs.entries[k] = append(rs.entries[k], entry{name: name, rule: rule})
	return nil
}

type duplicateRuleError struct {
	name       string
	targetType string
}

func (e duplicateRuleError) Error() string {
	return "rule " + e.name + " already registered for target type " + e.targetType
}

// candidates returns this rule set's own entries for (tt, a), without
// walking to a parent scope.
func (rs *RuleSet) candidates(tt *graph.Type, a Action) []entry {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return append([]entry(nil), rs.entries[key{tt, a}]...)
}

// RuleRegistry associates each *scope.Scope with its own RuleSet, owned by
// one Context rather than kept as package-level mutable state (spec.md:572-575
// "avoid truly static mutable state ... model as context-owned maps with
// explicit lifetime equal to the context"). Rules are registered per scope
// (buildfiles can declare project-local rules) but the lookup walk below
// searches outward the same way variable lookup does, so a rule declared at
// an outer scope is visible to every inner one. Inner registrations are
// tried first; rules are not de-duplicated by name, so an outer rule is still
// tried after a same-named inner one declines.
type RuleRegistry struct {
	mu   sync.Mutex
	sets map[*scope.Scope]*RuleSet
}

// NewRuleRegistry returns an empty registry, one per Context.
func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{sets: map[*scope.Scope]*RuleSet{}}
}

// For returns (creating if necessary) the RuleSet registered directly
// against s.
func (r *RuleRegistry) For(s *scope.Scope) *RuleSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.sets[s]
	if !ok {
		rs = NewRuleSet()
		r.sets[s] = rs
	}
	return rs
}

// Candidate is one rule found by Lookup, along with the name it was
// registered under and the scope that declared it.
type Candidate struct {
	Name  string
	Scope *scope.Scope
	Rule  Rule
}

// Lookup walks from s outward through Parent, collecting every registered
// rule for (tt, a) along the way. Rules from the innermost scope are tried
// first, mirroring spec.md §4.2's "innermost declaration wins" precedent
// used for variables and extended here to rule resolution.
func Lookup(reg *RuleRegistry, s *scope.Scope, tt *graph.Type, a Action) []Candidate {
	var out []Candidate
	for cur := s; cur != nil; cur = cur.Parent() {
		for _, e := range reg.For(cur).candidates(tt, a) {
			out = append(out, Candidate{Name: e.name, Scope: cur, Rule: e.rule})
		}
	}
	return out
}

// MatchRule runs Lookup(reg, s, tt, a) in order and returns the first rule
// whose Match reports true, per spec.md §4.5's single-winner match
// semantics. It returns ("", nil, false, nil) if nothing matched, and stops
// early with an error if a candidate's Match itself fails.
func MatchRule(reg *RuleRegistry, s *scope.Scope, tt *graph.Type, a Action, t *graph.Target) (string, Rule, bool, error) {
	for _, c := range Lookup(reg, s, tt, a) {
		ok, err := c.Rule.Match(a, t)
		if err != nil {
			return "", nil, false, err
		}
		if ok {
			return c.Name, c.Rule, true, nil
		}
	}
	return "", nil, false, nil
}

package match

import (
	stdcontext "context"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/build2/build2-sub005/src/diag"
	"github.com/build2/build2-sub005/src/graph"
	"github.com/build2/build2-sub005/src/process"
	"github.com/build2/build2-sub005/src/scope"
)

// Scheduler is the slice of context.Scheduler the engine needs to fan work
// out across workers: submit a task, and block until every task submitted
// so far through this interface value has returned. Declared locally
// (rather than importing src/context, which already imports src/match for
// its rule/action registries) so Engine carries no import-cycle dependency
// on its own driver; *context.Scheduler satisfies this structurally.
type Scheduler interface {
	Async(f func())
	Wait()

	// Deactivate/Activate step the calling goroutine out of (and back into)
	// the active worker pool around a blocking wait, the same way
	// context.PhaseMutex does around a phase switch: without it, a
	// prerequisite chain deeper than the scheduler's worker count
	// deadlocks every worker inside fanOut's wg.Wait() with no worker left
	// to run the children they're waiting on.
	Deactivate(external bool)
	Activate(external bool)
}

// Counters is the slice of context.Context's progress bookkeeping the engine
// updates as it matches and executes targets (spec.md §5). Declared locally
// for the same reason as Scheduler: *context.Context already implements it
// structurally, with no import needed in either direction.
type Counters interface {
	MatchedDependency()
	ExecutedDependency()
	MatchedTarget()
	ExecutedTarget()
	SkippedTarget()
	ResolvedTarget()
}

// Engine recursively drives spec.md §4.5's match/execute protocol for one
// Context: MatchSync resolves a target's rule and, concurrently via
// Scheduler, every one of its static prerequisites' rules before it returns;
// ExecuteSync does the same for running matched recipes, honouring each
// recipe's execution Mode. Because its method set is exactly
// src/dyndep.Engine's, an *Engine doubles as the production implementation a
// rule's recipe uses (via TryMatchSync/Update) to resolve a dynamically
// discovered prerequisite before depending on it -- no explicit interface
// assertion is needed on either side.
type Engine struct {
	Scopes    *scope.Map
	Rules     *RuleRegistry
	Actions   *ActionRegistry
	Scheduler Scheduler
	Executor  *process.Executor
	Counters  Counters
	PostHoc   *PostHocList

	// Generation is the build generation every OpState check and CAS in
	// this Engine is performed under (spec.md §4.5). One Engine is built
	// per Context per load, so it never needs to vary mid-traversal.
	Generation int32

	DryRun bool
}

// NewEngine constructs an Engine from a Context's own pieces (spec.md §5);
// cmd/anvil builds one per run() after the load phase completes.
func NewEngine(scopes *scope.Map, rules *RuleRegistry, actions *ActionRegistry, sched Scheduler, executor *process.Executor, counters Counters, postHoc *PostHocList, generation int32, dryRun bool) *Engine {
	return &Engine{
		Scopes:     scopes,
		Rules:      rules,
		Actions:    actions,
		Scheduler:  sched,
		Executor:   executor,
		Counters:   counters,
		PostHoc:    postHoc,
		Generation: generation,
		DryRun:     dryRun,
	}
}

func (e *Engine) scopeFor(t *graph.Target) *scope.Scope {
	if s := e.Scopes.FindOut(t.Key.OutDir); s != nil {
		return s
	}
	return e.Scopes.FindOut("")
}

// settledMatch reports the matched outcome for t if a's opstate has already
// passed Matched in this generation, and whether that outcome is final.
func (e *Engine) settledMatch(t *graph.Target, idx int) (matched bool, settled bool) {
	switch t.OpState(idx, e.Generation) {
	case graph.StateMatched, graph.StateApplied, graph.StateExecuted:
		return t.ActionState(idx).MatchedRule != nil, true
	case graph.StateFailed:
		return false, true
	}
	return false, false
}

// MatchSync resolves t's rule for a, recursively match-synchronizing every
// static prerequisite first (spec.md §4.5, "match_sync recursively
// match-synchronizes each prerequisite target"), fanning the recursion out
// across Scheduler. It returns whether a rule with a real (non-nil) recipe
// matched -- false for a target left as a plain, recipe-less leaf, which is
// not itself an error.
func (e *Engine) MatchSync(a Action, t *graph.Target) (bool, error) {
	idx := e.Actions.IndexOf(a)
	gen := e.Generation

	if matched, settled := e.settledMatch(t, idx); settled {
		if t.OpState(idx, gen) == graph.StateFailed {
			return false, diag.Failf("%s: previously failed to match", t)
		}
		return matched, nil
	}

	if !t.AdvanceOpState(idx, gen, graph.StateTouched, graph.StateTried) {
		// Another goroutine is already matching t for this action; spin
		// until it reaches a settled state rather than racing to match
		// twice (the winner can only move forward within this generation).
		// Deactivate first, the same way fanOut does around its wait: a
		// diamond dependency can have the loser for a shared prerequisite
		// spin here while the winner's own recursion still needs a worker
		// from the same pool to make progress.
		e.Scheduler.Deactivate(false)
		defer e.Scheduler.Activate(false)
		for {
			if matched, settled := e.settledMatch(t, idx); settled {
				if t.OpState(idx, gen) == graph.StateFailed {
					return false, diag.Failf("%s: previously failed to match", t)
				}
				return matched, nil
			}
			runtime.Gosched()
		}
	}

	prereqs := t.Prerequisites()
	if err := e.fanOut(prereqs, func(p *graph.Target) error {
		_, err := e.MatchSync(a, p)
		return err
	}); err != nil {
		t.AdvanceOpState(idx, gen, graph.StateTried, graph.StateFailed)
		return false, err
	}

	s := e.scopeFor(t)
	name, rule, ok, err := MatchRule(e.Rules, s, t.Key.Type, a, t)
	if err != nil {
		t.AdvanceOpState(idx, gen, graph.StateTried, graph.StateFailed)
		return false, err
	}
	if !ok {
		// No rule matched: an existing source file or other plain leaf has
		// nothing to execute, which is not itself a failure (spec.md §4.5).
		t.SetActionState(idx, &graph.ActionState{Prerequisites: prereqs, DependencyCount: len(prereqs)})
		t.AdvanceOpState(idx, gen, graph.StateTried, graph.StateMatched)
		return false, nil
	}

	recipe, err := rule.Apply(a, t)
	if err != nil {
		t.AdvanceOpState(idx, gen, graph.StateTried, graph.StateFailed)
		return false, err
	}

	t.SetActionState(idx, &graph.ActionState{
		MatchedRule:     name,
		Recipe:          recipe,
		Prerequisites:   prereqs,
		DependencyCount: len(prereqs),
	})
	if !recipe.Noop {
		e.Counters.MatchedTarget()
		for range prereqs {
			e.Counters.MatchedDependency()
		}
	}
	t.AdvanceOpState(idx, gen, graph.StateTried, graph.StateMatched)
	return true, nil
}

// ExecuteSync runs t's already-matched recipe for a, recursively
// executing its prerequisites before or after its own recipe according to
// the recipe's Mode (spec.md §4.5 "Execution modes"). since is the
// reference time a staleness check would compare against; this engine has
// no filesystem mtime model of its own, so every non-noop recipe is treated
// as needing to run, and since is accepted only for dyndep.Engine
// compatibility (via Update). It returns whether running t actually did
// anything.
func (e *Engine) ExecuteSync(a Action, t *graph.Target, since time.Time) (bool, error) {
	idx := e.Actions.IndexOf(a)
	gen := e.Generation

	if !t.AdvanceOpState(idx, gen, graph.StateMatched, graph.StateApplied) {
		switch t.OpState(idx, gen) {
		case graph.StateExecuted:
			recipe, _ := t.ActionState(idx).Recipe.(Recipe)
			return !recipe.Noop, nil
		case graph.StateApplied:
			// Another goroutine is already executing t for this action;
			// deactivate from the pool the same way fanOut and MatchSync's
			// spin wait do, since t's own recipe can be a long-running
			// external process that needs other workers free to finish.
			e.Scheduler.Deactivate(false)
			for t.OpState(idx, gen) == graph.StateApplied {
				runtime.Gosched()
			}
			e.Scheduler.Activate(false)
			return e.ExecuteSync(a, t, since)
		case graph.StateFailed:
			return false, diag.Failf("%s: previously failed to execute", t)
		default:
			return false, diag.Failf("%s: execute called on a target that was never matched for this action", t)
		}
	}

	st := t.ActionState(idx)
	recipe, hasRecipe := st.Recipe.(Recipe)
	prereqs := st.Prerequisites

	runPrereqs := func() error {
		return e.fanOut(prereqs, func(p *graph.Target) error {
			_, err := e.ExecuteSync(a, p, since)
			return err
		})
	}

	if recipe.Mode != ModeLast {
		if err := runPrereqs(); err != nil {
			t.AdvanceOpState(idx, gen, graph.StateApplied, graph.StateFailed)
			return false, err
		}
	}

	updated := false
	if hasRecipe && !recipe.Noop {
		if e.DryRun {
			e.Counters.SkippedTarget()
			updated = true
		} else {
			if _, _, err := Run(stdcontext.Background(), e.Executor, t, recipe); err != nil {
				t.AdvanceOpState(idx, gen, graph.StateApplied, graph.StateFailed)
				return false, err
			}
			e.Counters.ExecutedTarget()
			for range prereqs {
				e.Counters.ExecutedDependency()
			}
			updated = true
		}
	}

	if recipe.Mode == ModeLast {
		if err := runPrereqs(); err != nil {
			t.AdvanceOpState(idx, gen, graph.StateApplied, graph.StateFailed)
			return false, err
		}
	}

	t.AdvanceOpState(idx, gen, graph.StateApplied, graph.StateExecuted)
	return updated, nil
}

// fanOut runs f against every target in targets concurrently via Scheduler,
// waiting only for this call's own batch (Scheduler.Wait drains the whole
// scheduler's backlog, which would over-synchronize sibling recursions), and
// aggregates every non-nil error.
func (e *Engine) fanOut(targets []*graph.Target, f func(*graph.Target) error) error {
	if len(targets) == 0 {
		return nil
	}
	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	wg.Add(len(targets))
	for i, t := range targets {
		i, t := i, t
		e.Scheduler.Async(func() {
			defer wg.Done()
			errs[i] = f(t)
		})
	}
	e.Scheduler.Deactivate(false)
	wg.Wait()
	e.Scheduler.Activate(false)

	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// TryMatchSync implements dyndep.Engine: a rule's recipe calls this, via
// whatever dyndep.InjectFile/InjectExistingFile/InjectGroupMember call it
// uses, to match-synchronize a dynamically discovered prerequisite before
// depending on it. A successful match is also registered with PostHoc,
// since the main match sweep has already passed this target by the time a
// recipe discovers it (spec.md §4.5 "post-hoc prerequisites").
func (e *Engine) TryMatchSync(a Action, t *graph.Target) (bool, error) {
	matched, err := e.MatchSync(a, t)
	if err != nil {
		return false, err
	}
	if matched {
		e.PostHoc.Add(t)
	}
	return matched, nil
}

// Update implements dyndep.Engine, running ExecuteSync for a dynamically
// discovered prerequisite dyndep has already matched via TryMatchSync.
func (e *Engine) Update(a Action, t *graph.Target, since time.Time) (bool, error) {
	return e.ExecuteSync(a, t, since)
}

// ActionNoopChecker adapts Engine to a dyndep.NoopChecker bound to one fixed
// action -- IsNoop's signature carries no Action of its own, so the engine
// needs to be paired with one before it can serve as a checker.
type ActionNoopChecker struct {
	Engine *Engine
	Action Action
}

// IsNoop reports whether t's matched recipe for c.Action is a no-op,
// treating an unmatched target as noop (nothing for the caller to be
// surprised by).
func (c ActionNoopChecker) IsNoop(t *graph.Target) bool {
	idx := c.Engine.Actions.IndexOf(c.Action)
	recipe, ok := t.ActionState(idx).Recipe.(Recipe)
	return !ok || recipe.Noop
}

// RunPostHoc drives every post-hoc prerequisite accumulated via TryMatchSync
// (dyndep injection mid-recipe) through match and execute, re-iterating to a
// fixed point the way PostHocList.Drive requires (spec.md §4.5).
func (e *Engine) RunPostHoc(a Action, since time.Time) error {
	return e.PostHoc.Drive(func(t *graph.Target) error {
		if _, err := e.MatchSync(a, t); err != nil {
			return err
		}
		_, err := e.ExecuteSync(a, t, since)
		return err
	})
}

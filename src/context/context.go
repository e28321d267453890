package context

import (
	"sync/atomic"

	"github.com/build2/build2-sub005/src/graph"
	"github.com/build2/build2-sub005/src/match"
	"github.com/build2/build2-sub005/src/scope"
)

// Context owns one build's worth of state: the scope tree, the target set,
// the variable override cache, the phase mutex and scheduler that drive the
// load/match/execute protocol, and the handful of process-wide flags and
// counters every operation consults (spec.md §5). A Context can be nested
// (Parent non-nil) to let one build preempt another, for example to update a
// build system module, mirroring build2's own nested-context support.
type Context struct {
	phaseMutex *PhaseMutex
	Scheduler  *Scheduler

	Scopes        *scope.Map
	Global        *scope.Scope
	Targets       *graph.Set
	OverrideCache *scope.Cache

	// Rules and Actions are this Context's own rule/operation registries
	// (spec.md:572-575): scoped to the Context's lifetime rather than kept
	// as package-level mutable state in src/match.
	Rules   *match.RuleRegistry
	Actions *match.ActionRegistry
	PostHoc *match.PostHocList

	Parent *Context

	// LoadGeneration identifies the "island" the load phase is currently
	// building, so nodes created in an earlier island can tell they predate
	// this one (spec.md §5 "exclusive load / island appends"). It starts at
	// 0 and changes only through NextLoadGeneration; the phase mutex,
	// LockPhase and RelockPhase do not advance it.
	LoadGeneration uint64

	DryRun     bool
	KeepGoing  bool

	// Per-action counters (spec.md §5): DependencyCount tracks outstanding
	// dependency edges between match and execute as a sanity check;
	// TargetCount/SkipCount/ResolveCount drive progress reporting.
	DependencyCount int64
	TargetCount     int64
	SkipCount       int64
	ResolveCount    int64
}

// Option configures a new Context.
type Option func(*Context)

// WithParallelism overrides the scheduler's worker count (default
// DefaultParallelism()).
func WithParallelism(n int) Option {
	return func(c *Context) { c.Scheduler = NewScheduler(n) }
}

// WithDryRun sets the dry-run flag (spec.md §7: recipes report what they
// would do without touching the filesystem).
func WithDryRun(v bool) Option {
	return func(c *Context) { c.DryRun = v }
}

// WithKeepGoing sets whether a failed action should still let independent
// work continue.
func WithKeepGoing(v bool) Option {
	return func(c *Context) { c.KeepGoing = v }
}

// WithOverrideCacheShards overrides the shard count of the variable
// override cache (default 64).
func WithOverrideCacheShards(n int) Option {
	return func(c *Context) { c.OverrideCache = scope.NewCache(n) }
}

// NewContext constructs a fresh top-level Context: a global scope, an empty
// target set, and a scheduler sized to the host's CPU count unless
// overridden.
func NewContext(opts ...Option) *Context {
	ctx := &Context{
		Scheduler:     NewScheduler(DefaultParallelism()),
		Targets:       graph.NewSet(),
		OverrideCache: scope.NewCache(64),
		Rules:         match.NewRuleRegistry(),
		Actions:       match.NewActionRegistry(),
		PostHoc:       match.NewPostHocList(),
	}
	ctx.Scopes, ctx.Global = scope.NewMap()
	for _, o := range opts {
		o(ctx)
	}
	ctx.phaseMutex = newPhaseMutex(ctx.Scheduler)
	return ctx
}

// NewNestedContext constructs a Context that shares nothing with parent
// except its position in the nesting chain -- used when one build must
// preempt another (e.g. to build a build-system module) without letting
// their phase mutexes or scope trees interfere.
func NewNestedContext(parent *Context, opts ...Option) *Context {
	ctx := NewContext(opts...)
	ctx.Parent = parent
	return ctx
}

// Phase returns the phase currently in effect for this Context.
func (c *Context) Phase() Phase { return c.phaseMutex.Current() }

// LockPhase joins n, blocking until it can (load is exclusive; match and
// execute allow unbounded concurrent holders). Returns false if the phase
// mutex has been marked failed. The exported entry point external drivers
// (e.g. cmd/anvil) use to step a Context through load/match/execute.
func (c *Context) LockPhase(n Phase) bool { return c.phaseMutex.Lock(n) }

// UnlockPhase releases a phase joined via LockPhase or RelockPhase.
func (c *Context) UnlockPhase(o Phase) { c.phaseMutex.Unlock(o) }

// RelockPhase atomically releases o and joins n, used at the match/execute
// boundary so a goroutine never fully drops out of the phase protocol
// between the two.
func (c *Context) RelockPhase(o, n Phase) (switched bool, ok bool) {
	return c.phaseMutex.Relock(o, n)
}

// FailPhase marks the phase mutex failed: used by a load phase that must
// abort partway through, so every other goroutine waiting on (or later
// requesting) a phase lock learns the build state can't be trusted.
func (c *Context) FailPhase() { c.phaseMutex.Fail() }

// NextLoadGeneration advances the load generation by one and returns the new
// value. Switching phases does not call it.
func (c *Context) NextLoadGeneration() uint64 {
	return atomic.AddUint64(&c.LoadGeneration, 1)
}

// CurrentGeneration returns the load generation as the int32 graph.Target's
// opstate slots key off of, so match/execute can invalidate per-target state
// left over from an earlier load without zeroing every target explicitly.
func (c *Context) CurrentGeneration() int32 {
	return int32(atomic.LoadUint64(&c.LoadGeneration))
}

func (c *Context) addDependency(delta int64) { atomic.AddInt64(&c.DependencyCount, delta) }
func (c *Context) addTarget(delta int64)      { atomic.AddInt64(&c.TargetCount, delta) }
func (c *Context) addSkip(delta int64)        { atomic.AddInt64(&c.SkipCount, delta) }
func (c *Context) addResolve(delta int64)     { atomic.AddInt64(&c.ResolveCount, delta) }

// MatchedDependency records a dependency edge discovered during match,
// decremented again by ExecutedDependency once it's been executed -- a
// running total that should reach zero by the end of the action.
func (c *Context) MatchedDependency() { c.addDependency(1) }

// ExecutedDependency reverses a prior MatchedDependency.
func (c *Context) ExecutedDependency() { c.addDependency(-1) }

// MatchedTarget records a non-noop recipe having been matched; ExecutedTarget
// or SkippedTarget should eventually balance it.
func (c *Context) MatchedTarget() { c.addTarget(1) }

// ExecutedTarget reverses a prior MatchedTarget once its recipe has run.
func (c *Context) ExecutedTarget() { c.addTarget(-1) }

// SkippedTarget reverses a prior MatchedTarget for a recipe that chose not
// to execute (e.g. because the action doesn't apply), recording a skip
// instead for progress reporting.
func (c *Context) SkippedTarget() {
	c.addTarget(-1)
	c.addSkip(1)
}

// ResolvedTarget records a target matched but not executed as a side effect
// of resolving group members.
func (c *Context) ResolvedTarget() { c.addResolve(1) }

package match

import (
	"context"
	"time"

	"github.com/alessio/shellescape"

	"github.com/build2/build2-sub005/src/graph"
	"github.com/build2/build2-sub005/src/process"
)

// Recipe is what Apply hands back for a matched (action, target) pair: the
// steps execute will later run. Recipe is a struct rather than a bare
// func(...) error so that a noop recipe is detectable without calling it,
// letting execute skip the whole dependency-count bookkeeping for it (the
// "noop_recipe fast path" of spec.md §4.5). Recipe values are not comparable
// (Argv and Env are slices), so they cannot serve as map keys.
type Recipe struct {
	// Noop marks a recipe that performs no work (e.g. a phony alias target);
	// execute short-circuits these without spawning a goroutine or touching
	// the dependency counters.
	Noop bool

	// Mode declares whether this recipe's prerequisites should be executed
	// before it (ModeFirst, the zero value, for update-like operations) or
	// after (ModeLast, for clean-like operations) -- spec.md §4.5 "Execution
	// modes".
	Mode Mode

	// Argv is the command to run, unescaped. Command-line construction (e.g.
	// joining several recipe steps into one shell script) is the rule's job;
	// Recipe only carries the final argv understood by src/process.
	Argv []string

	// Dir is the working directory the recipe runs in.
	Dir string

	// Env is additional environment variables ("NAME=value" pairs) layered
	// on top of the ambient environment.
	Env []string

	// Timeout bounds how long the recipe may run, 0 meaning no limit.
	Timeout time.Duration

	// Description renders a one-line human summary for progress/diagnostic
	// output ("compile foo.cc"), independent of the literal argv.
	Description string
}

// ShellRecipe builds a Recipe that runs command through bash -c, quoting
// each of args into the script with shellescape so prerequisite paths or
// variable values containing shell metacharacters can't be reinterpreted
// (spec.md §4.5, recipe argv construction deferred here from src/process).
func ShellRecipe(dir string, env []string, timeout time.Duration, description string, command string, args ...string) Recipe {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellescape.Quote(a)
	}
	script := command
	for _, q := range quoted {
		script += " " + q
	}
	return Recipe{
		Argv:        process.BashCommand("bash", script, true),
		Dir:         dir,
		Env:         env,
		Timeout:     timeout,
		Description: description,
	}
}

// recipeTarget adapts a *graph.Target plus a Recipe's description into the
// minimal process.Target interface, so recipe execution can reuse
// src/process's Executor without that package depending on graph.
type recipeTarget struct {
	t           *graph.Target
	description string
	progress    float32
	exitOnError bool
}

func (rt *recipeTarget) String() string              { return rt.t.String() }
func (rt *recipeTarget) ShouldShowProgress() bool    { return false }
func (rt *recipeTarget) SetProgress(p float32)       { rt.progress = p }
func (rt *recipeTarget) ProgressDescription() string { return rt.description }
func (rt *recipeTarget) ShouldExitOnError() bool     { return rt.exitOnError }

// Run executes r against t using executor, returning the recipe's stdout
// alone, its combined stdout+stderr output, and any error. A Noop recipe returns immediately with no output and
// without touching the executor at all.
func Run(ctx context.Context, executor *process.Executor, t *graph.Target, r Recipe) ([]byte, []byte, error) {
	if r.Noop {
		return nil, nil, nil
	}
	rt := &recipeTarget{t: t, description: r.Description, exitOnError: true}
	return executor.ExecWithTimeout(ctx, rt, r.Dir, r.Env, r.Timeout, false, false, false, false, process.NoSandbox, r.Argv)
}

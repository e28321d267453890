// Command anvil is the minimal driver binary for the engine: it parses a
// handful of build-wide flags plus the command-line variable override
// grammar (spec.md §6), constructs a Context, resolves the given target
// keys, and runs one operation (update by default) against them through the
// rule match/apply/execute protocol. The full command-line and diagnostics
// front end a real build tool needs (config profiles, multiple commands,
// interactive output, ...) is explicitly out of scope; anvil exists only to
// prove the core is drivable end to end (SPEC_FULL.md §6a).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/thought-machine/go-flags"

	"github.com/build2/build2-sub005/src/cli/logging"
	"github.com/build2/build2-sub005/src/config"
	"github.com/build2/build2-sub005/src/context"
	"github.com/build2/build2-sub005/src/diag"
	"github.com/build2/build2-sub005/src/graph"
	"github.com/build2/build2-sub005/src/match"
	"github.com/build2/build2-sub005/src/process"
	"github.com/build2/build2-sub005/src/scope"
	"github.com/build2/build2-sub005/src/value"
)

var log = logging.Log

var opts struct {
	Operation   string   `short:"o" long:"operation" default:"update" description:"Operation to run against the given targets (update, clean, ...)"`
	Override    []string `short:"v" long:"var" description:"Variable override, e.g. -v cxx.std=c++20 or -v !toolchain.prefix=/opt/cross"`
	Parallelism int      `short:"j" long:"parallelism" description:"Number of concurrent match/execute workers. Default is config.build's parallelism, else the number of physical CPU cores."`
	DryRun      bool     `long:"dry_run" description:"Report what would be done without running any recipe."`
	KeepGoing   bool     `long:"keep_going" description:"Continue with independent work after a failure."`
	ConfigDir   string   `long:"config_dir" default:"." description:"Directory holding config.build."`
	SrcRoot     string   `long:"src_root" description:"Root of the src scope tree. Defaults to the current directory."`
	OutRoot     string   `long:"out_root" description:"Root of the out scope tree. Defaults to --config_dir."`
	Args        struct {
		Targets []string `positional-arg-name:"targets" description:"Target keys to run the operation against, e.g. cxx{foo.cc}"`
	} `positional-args:"true" required:"true"`
}

func main() {
	parser := flags.NewNamedParser("anvil", flags.HelpFlag|flags.PassDoubleDash)
	parser.AddGroup("anvil options", "", &opts)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logging.Log.Debug("anvil starting")
	if err := run(); err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
}

func run() error {
	srcRoot := opts.SrcRoot
	if srcRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		srcRoot = wd
	}
	outRoot := opts.OutRoot
	if outRoot == "" {
		outRoot = opts.ConfigDir
	}
	srcRoot, outRoot = mustAbs(srcRoot), mustAbs(outRoot)

	cfgPath := filepath.Join(outRoot, config.FileName)
	cfg, err := config.ReadFile(cfgPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfgPath, err)
	}

	parallelism := opts.Parallelism
	if parallelism == 0 {
		parallelism = cfg.Build.Parallelism
	}
	dryRun := opts.DryRun || cfg.Build.DryRun
	keepGoing := opts.KeepGoing || cfg.Build.KeepGoing

	var ctxOpts []context.Option
	if parallelism > 0 {
		ctxOpts = append(ctxOpts, context.WithParallelism(parallelism))
	}
	ctxOpts = append(ctxOpts, context.WithDryRun(dryRun), context.WithKeepGoing(keepGoing))
	ctx := context.NewContext(ctxOpts...)

	proj := ctx.Scopes.InsertProject(ctx.Global, outRoot, srcRoot)

	for name, v := range cfg.Variable {
		o := value.CLIOverride{Name: name, Kind: value.OverrideReplace}
		if err := applyOverride(o, v, proj.Vars); err != nil {
			return fmt.Errorf("config.build variable %s: %w", name, err)
		}
	}
	for _, raw := range opts.Override {
		o, err := value.ParseCLIOverride(raw)
		if err != nil {
			return fmt.Errorf("invalid override %q: %w", raw, err)
		}
		pool := poolFor(ctx, proj, o)
		if err := applyOverride(o, o.Unescape(), pool); err != nil {
			return fmt.Errorf("override %q: %w", raw, err)
		}
	}

	action := match.Action{Inner: ctx.Actions.RegisterOperation(opts.Operation)}

	targets := make([]*graph.Target, 0, len(opts.Args.Targets))
	for _, t := range opts.Args.Targets {
		key, err := graph.ParseKey(t)
		if err != nil {
			return suggestTargetType(t, err)
		}
		if key.SrcDir == "" {
			key.SrcDir = srcRoot
		}
		if key.OutDir == "" {
			key.OutDir = key.SrcDir
		}
		tgt, _, err := ctx.Targets.InsertOrGet(key, graph.DeclExplicit, func() *graph.Target {
			return graph.NewTarget(key, graph.DeclExplicit)
		})
		if err != nil {
			return fmt.Errorf("%s: %w", t, err)
		}
		targets = append(targets, tgt)
	}

	if !ctx.LockPhase(context.PhaseMatch) {
		return diag.Fail("anvil: phase mutex failed before match could begin")
	}
	defer ctx.UnlockPhase(context.PhaseMatch)

	engine := match.NewEngine(ctx.Scopes, ctx.Rules, ctx.Actions, ctx.Scheduler, process.New(), ctx, ctx.PostHoc, ctx.CurrentGeneration(), dryRun)

	var failures *multierror.Error
	matched := make([]*graph.Target, 0, len(targets))
	for _, tgt := range targets {
		ok, err := engine.MatchSync(action, tgt)
		if err != nil {
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", tgt, err))
			if !keepGoing {
				return failures.ErrorOrNil()
			}
			continue
		}
		if !ok {
			log.Debugf("%s: no rule matched for operation %q, treating as up to date", tgt, opts.Operation)
			continue
		}
		matched = append(matched, tgt)
	}

	switched, ok := ctx.RelockPhase(context.PhaseMatch, context.PhaseExecute)
	if !ok {
		failures = multierror.Append(failures, diag.Fail("anvil: phase mutex failed switching into execute"))
		return failures.ErrorOrNil()
	}
	defer func() {
		if switched {
			ctx.RelockPhase(context.PhaseExecute, context.PhaseMatch)
		}
	}()

	since := time.Now()
	stopped := false
	for _, tgt := range matched {
		if _, err := engine.ExecuteSync(action, tgt, since); err != nil {
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", tgt, err))
			if !keepGoing {
				stopped = true
				break
			}
		}
	}
	if !stopped {
		if err := engine.RunPostHoc(action, since); err != nil {
			failures = multierror.Append(failures, err)
		}
	}

	return failures.ErrorOrNil()
}

// poolFor resolves which scope's variable pool an override targets, per
// spec.md §6's qualifier grammar: global and project overrides apply at
// those fixed scopes, a directory-qualified override resolves against the
// out-scope rooted there (falling back to proj if no such scope has been
// created yet), and an unqualified override applies at proj, since anvil
// has no finer-grained "current scope" concept of its own.
func poolFor(ctx *context.Context, proj *scope.Scope, o value.CLIOverride) *value.Pool {
	switch o.Visibility {
	case value.VisibilityGlobal:
		return ctx.Global.Vars
	case value.VisibilityProject:
		return proj.Vars
	default:
		if o.Directory != "" {
			if s := ctx.Scopes.FindOut(o.Directory); s != nil {
				return s.Vars
			}
		}
		return proj.Vars
	}
}

func applyOverride(o value.CLIOverride, literal string, pool *value.Pool) error {
	va, err := pool.Insert(o.Name)
	if err != nil {
		return err
	}
	if err := value.ValidateOverride(o, va, false); err != nil {
		return err
	}
	val := value.NewUntyped(value.NamesOf(literal))
	return va.AddOverride(o.Kind, val, pool.NextOverrideSeq())
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// suggestTargetType enriches cause with a "maybe you meant" hint when raw's
// type-name portion is close to a registered target type, per SPEC_FULL.md
// §7's suggestion-diagnostics addition.
func suggestTargetType(raw string, cause error) error {
	typeName := raw
	if open := strings.IndexByte(typeName, '{'); open != -1 {
		typeName = typeName[:open]
	}
	if slash := strings.LastIndexByte(typeName, '/'); slash != -1 {
		typeName = typeName[slash+1:]
	}

	names := make([]string, 0)
	for _, tt := range graph.AllTypes() {
		names = append(names, tt.Name)
	}
	if hint := diag.SuggestNames(typeName, names); hint != "" {
		return fmt.Errorf("%w (%s)", cause, hint)
	}
	return cause
}

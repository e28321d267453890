// Package config persists the two pieces of on-disk state spec.md §6 allows
// the core to keep: config.build, an INI-style key/value dump of
// configuration variables written by a configure step and read back by
// every subsequent build, and (see depdb.go) the per-target depdb files
// match/execute use to detect stale dynamic dependencies.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/gcfg.v1"
)

// FileName is config.build's conventional name, living in a target's out
// directory root (spec.md §6 "Persisted state").
const FileName = "config.build"

// Configuration is config.build's shape: a couple of named build-driver
// settings grouped the way please's own `.plzconfig` groups settings into
// `[section]` structs, plus a `Variable` map that captures arbitrary
// `name=value` project/global variable overrides set during configure --
// gcfg's "variable variable names" feature (a map-typed field stands for an
// entire section of caller-chosen keys) is exactly what a buildfile's open
// set of override names needs, the same way please's config structs use
// named fields for its own fixed option set.
type Configuration struct {
	Build struct {
		Parallelism int  // 0 means "pick automatically", mirroring src/context.DefaultParallelism
		DryRun      bool
		KeepGoing   bool
	}
	Variable map[string]string
}

// NewConfiguration returns a Configuration with zero-value build settings
// and an empty variable map, ready to be filled in by ReadFile or by a
// configure step.
func NewConfiguration() *Configuration {
	return &Configuration{Variable: map[string]string{}}
}

// ReadFile loads config.build at path into a fresh Configuration. A missing
// file is not an error -- spec.md §6 treats a project with no prior
// configure step as simply starting from defaults, the same tolerance
// please's readConfigFile shows for a missing `.plzconfig`.
func ReadFile(path string) (*Configuration, error) {
	cfg := NewConfiguration()
	if err := gcfg.ReadFileInto(cfg, path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		if fatal := gcfg.FatalOnly(err); fatal != nil {
			return nil, fatal
		}
	}
	if cfg.Variable == nil {
		cfg.Variable = map[string]string{}
	}
	return cfg, nil
}

// WriteFile serialises cfg to path as INI text gcfg.ReadFileInto can read
// back, written via a temp-file-then-rename so a crash mid-write leaves the
// previous config.build intact rather than a truncated one (spec.md §6
// only requires depdb writes be crash-atomic, but config.build gets the
// same treatment for the same reason: please's own WriteFile utility takes
// exactly this precaution for config-adjacent files).
func WriteFile(path string, cfg *Configuration) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := writeConfiguration(tmp, cfg); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func writeConfiguration(w io.Writer, cfg *Configuration) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "[build]")
	fmt.Fprintf(bw, "parallelism = %d\n", cfg.Build.Parallelism)
	fmt.Fprintf(bw, "dryrun = %v\n", cfg.Build.DryRun)
	fmt.Fprintf(bw, "keepgoing = %v\n", cfg.Build.KeepGoing)

	if len(cfg.Variable) > 0 {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, "[variable]")
		names := make([]string, 0, len(cfg.Variable))
		for n := range cfg.Variable {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(bw, "%s = %q\n", n, cfg.Variable[n])
		}
	}

	return bw.Flush()
}

// Package process implements generic subprocess management for recipe
// execution: starting, timing out, and forcibly terminating external
// commands, with buffered or streamed output capture (spec.md §7).
package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/build2/build2-sub005/src/cli/logging"
)

var log = logging.Log

// An Executor handles starting, running and monitoring a set of
// subprocesses, and registers to terminate them all at process exit.
type Executor struct {
	processes map[*exec.Cmd]<-chan error
	mutex     sync.Mutex
}

// New returns a new Executor and registers it to be killed at process exit.
func New() *Executor {
	e := &Executor{processes: map[*exec.Cmd]<-chan error{}}
	registerForAtExit(e)
	return e
}

// SandboxConfig is accepted by the exec-building functions for interface
// symmetry with a caller that knows about per-recipe sandboxing; this core
// does not implement namespace/mount sandboxing (spec.md §1 Non-goals), so
// every field is inert here.
type SandboxConfig struct {
	Network, Mount, Fakeroot bool
}

// NoSandbox represents a no-sandbox value.
var NoSandbox = SandboxConfig{}

// NewSandboxConfig creates a new SandboxConfig.
func NewSandboxConfig(network, mount bool) SandboxConfig {
	return SandboxConfig{Network: network, Mount: mount}
}

// A Target is the minimal interface process needs to report progress and
// identify the recipe it's running, kept separate from graph.Target so this
// package never imports the graph package.
type Target interface {
	String() string
	ShouldShowProgress() bool
	SetProgress(float32)
	ProgressDescription() string
	ShouldExitOnError() bool
}

// ExecWithTimeout runs an external command with a timeout. If the command
// times out the returned error is context.DeadlineExceeded. It returns
// stdout alone, combined stdout+stderr, and any error that occurred. A zero
// timeout means no limit.
func (e *Executor) ExecWithTimeout(ctx context.Context, target Target, dir string, env []string, timeout time.Duration, showOutput, attachStdin, attachStdout, foreground bool, sandbox SandboxConfig, argv []string) ([]byte, []byte, error) {
	// Deliberately not attached to cmd directly, so termination is under our
	// own control rather than context's (which only sends SIGKILL).
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	cmd := e.ExecCommand(sandbox, foreground, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Env, env...)

	var out bytes.Buffer
	var combined safeBuffer
	var progress *float32
	if showOutput {
		cmd.Stdout = io.MultiWriter(os.Stderr, &out, &combined)
		cmd.Stderr = io.MultiWriter(os.Stderr, &combined)
	} else {
		cmd.Stdout = io.MultiWriter(&out, &combined)
		cmd.Stderr = &combined
	}
	if target != nil && target.ShouldShowProgress() {
		progress = new(float32)
		cmd.Stdout = newProgressWriter(target, progress, cmd.Stdout)
		cmd.Stderr = newProgressWriter(target, progress, cmd.Stderr)
	}
	if attachStdin {
		cmd.Stdin = os.Stdin
	}
	if attachStdout {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if target != nil {
		go logProgress(ctx, target, progress)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	ch := make(chan error, 1)
	e.registerProcess(cmd, ch)
	defer e.removeProcess(cmd)
	go func() { ch <- cmd.Wait() }()

	var err error
	select {
	case err = <-ch:
	case <-ctx.Done():
		err = ctx.Err()
		e.KillProcess(cmd)
	}
	return out.Bytes(), combined.Bytes(), err
}

// ExecWithTimeoutShell runs an external command within a shell. The command
// is a single string passed to bash -c unchanged; quoting any tokens
// assembled into it is the caller's job (see BashCommand).
func (e *Executor) ExecWithTimeoutShell(target Target, dir string, env []string, timeout time.Duration, showOutput, foreground bool, sandbox SandboxConfig, cmd string) ([]byte, []byte, error) {
	return e.ExecWithTimeoutShellStdStreams(target, dir, env, timeout, showOutput, foreground, sandbox, cmd, false)
}

// ExecWithTimeoutShellStdStreams is as ExecWithTimeoutShell but optionally
// attaches stdin/stdout to the subprocess.
func (e *Executor) ExecWithTimeoutShellStdStreams(target Target, dir string, env []string, timeout time.Duration, showOutput, foreground bool, sandbox SandboxConfig, cmd string, attachStdStreams bool) ([]byte, []byte, error) {
	argv := BashCommand("bash", cmd, target.ShouldExitOnError())
	return e.ExecWithTimeout(context.Background(), target, dir, env, timeout, showOutput, attachStdStreams, attachStdStreams, foreground, sandbox, argv)
}

// KillProcess kills a process, sending SIGTERM to its process group and,
// after waiting up to 30ms for it to exit, SIGKILL to the group as well,
// whether or not it has already exited.
func (e *Executor) KillProcess(cmd *exec.Cmd) {
	e.killProcess(cmd, e.processChan(cmd))
}

func (e *Executor) killProcess(cmd *exec.Cmd, ch <-chan error) {
	success := sendSignal(cmd, ch, syscall.SIGTERM, 30*time.Millisecond)
	if !sendSignal(cmd, ch, syscall.SIGKILL, time.Second) && !success {
		log.Error("Failed to kill inferior process")
	}
	e.removeProcess(cmd)
}

func (e *Executor) removeProcess(cmd *exec.Cmd) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.processes, cmd)
}

func (e *Executor) registerProcess(cmd *exec.Cmd, ch <-chan error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.processes[cmd] = ch
}

func (e *Executor) processChan(cmd *exec.Cmd) <-chan error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.processes[cmd]
}

// sendSignal sends a single signal to the process's group, returning true if
// it exited within the timeout.
func sendSignal(cmd *exec.Cmd, ch <-chan error, sig syscall.Signal, timeout time.Duration) bool {
	if cmd.Process == nil {
		log.Debug("Not terminating process, it seems to have not started yet")
		return false
	}
	log.Debug("Sending signal %s to -%d", sig, cmd.Process.Pid)
	syscall.Kill(-cmd.Process.Pid, sig) // Kill the group - ExecCommand always sets one.

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// LogProgress logs a message once a minute until ctx expires, giving some
// notion of progress while waiting on an external command with no output.
func (e *Executor) LogProgress(ctx context.Context, target Target) {
	logProgress(ctx, target, nil)
}

func logProgress(ctx context.Context, target Target, progress *float32) {
	name := target.String()
	msg := target.ProgressDescription()
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for i := 1; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if i == 1 {
				log.Notice("%s still %s after 1 minute %s", name, msg, progressMessage(progress))
			} else {
				log.Notice("%s still %s after %d minutes %s", name, msg, i, progressMessage(progress))
			}
		}
	}
}

// safeBuffer is an io.Writer guarded by a mutex because a command's stdout
// and stderr may both be writing to it from separate goroutines.
type safeBuffer struct {
	sync.Mutex
	buf bytes.Buffer
}

func (sb *safeBuffer) Write(b []byte) (int, error) {
	sb.Lock()
	defer sb.Unlock()
	return sb.buf.Write(b)
}

func (sb *safeBuffer) Bytes() []byte { return sb.buf.Bytes() }

func progressMessage(progress *float32) string {
	if progress != nil {
		return fmt.Sprintf("(%0.1f%% done)", *progress)
	}
	return ""
}

// killAll kills every subprocess this executor currently has running.
func (e *Executor) killAll() {
	e.mutex.Lock()
	procs := make(map[*exec.Cmd]<-chan error, len(e.processes))
	for k, v := range e.processes {
		procs[k] = v
	}
	e.mutex.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(procs))
	for proc, ch := range procs {
		go func(proc *exec.Cmd, ch <-chan error) {
			defer wg.Done()
			e.killProcess(proc, ch)
		}(proc, ch)
	}
	wg.Wait()
}

// ExecCommand is a one-shot convenience wrapper for a command with no
// timeout, progress tracking or sandboxing.
func ExecCommand(args ...string) ([]byte, error) {
	e := New()
	cmd := e.ExecCommand(NoSandbox, false, args[0], args[1:]...)
	defer e.removeProcess(cmd)
	return cmd.CombinedOutput()
}

// BashCommand builds the argv for running command inside a non-interactive
// bash. command is passed through as the single script argument (-c); it is
// the caller's responsibility to quote any tokens assembled into it (see
// src/match's use of shellescape for recipe argv construction).
func BashCommand(binary, command string, exitOnError bool) []string {
	if exitOnError {
		return []string{binary, "--noprofile", "--norc", "-e", "-u", "-o", "pipefail", "-c", command}
	}
	return []string{binary, "--noprofile", "--norc", "-u", "-o", "pipefail", "-c", command}
}

//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// ExecCommand builds an *exec.Cmd for command/args, setting Pdeathsig so a
// child doesn't outlive us if we're killed, and Setpgid so the whole process
// group can be signalled together in KillProcess (always -- sendSignal kills
// -pid unconditionally, and an unset pgid would put the child in our own
// group). sandbox and foreground are accepted for interface symmetry with
// higher-level callers but are not applied to the process: namespace
// sandboxing is out of scope here, and foreground-vs-background only
// affects stream attachment, handled by the caller.
func (e *Executor) ExecCommand(sandbox SandboxConfig, foreground bool, command string, args ...string) *exec.Cmd {
	cmd := exec.Command(command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGHUP,
		Setpgid:   true,
	}
	return cmd
}

//go:build !linux

package process

import (
	"os/exec"
	"syscall"
)

// ExecCommand builds an *exec.Cmd for command/args with its own process
// group (so KillProcess's group signal doesn't reach us too); Pdeathsig has
// no equivalent outside Linux. See exec_linux.go for the parameter notes.
func (e *Executor) ExecCommand(sandbox SandboxConfig, foreground bool, command string, args ...string) *exec.Cmd {
	cmd := exec.Command(command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd
}

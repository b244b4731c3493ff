//go:build unix && !linux

// Package procattr puts tool provider processes into their own process group
// so the whole tree can be signalled on shutdown.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set starts cmd in a new process group.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

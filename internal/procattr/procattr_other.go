//go:build !unix

// Package procattr puts tool provider processes into their own process group
// so the whole tree can be signalled on shutdown.
package procattr

import (
	"os"
	"os/exec"
	"syscall"
)

// Set is a no-op where process groups are not available.
func Set(*exec.Cmd) {}

// SignalGroup signals only p itself where process groups are not available.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	return p.Signal(sig)
}

func TerminateGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

func KillGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

//go:build unix

package procattr

import (
	"os"
	"syscall"
)

// SignalGroup delivers sig to every process in p's group. A nil p is a no-op.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	return syscall.Kill(-p.Pid, sig)
}

func TerminateGroup(p *os.Process) error {
	return SignalGroup(p, syscall.SIGTERM)
}

func KillGroup(p *os.Process) error {
	return SignalGroup(p, syscall.SIGKILL)
}

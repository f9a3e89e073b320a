//go:build unix

package supervisor

import (
	"errors"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = sysProcAttr()
}

// terminate sends SIGTERM to the whole process group so helpers spawned by
// the tool stop too.
func terminate(p *os.Process) error {
	return signalGroup(p, unix.SIGTERM)
}

func kill(p *os.Process) error {
	return signalGroup(p, unix.SIGKILL)
}

func signalGroup(p *os.Process, sig unix.Signal) error {
	err := unix.Kill(-p.Pid, sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return p.Signal(sig)
}

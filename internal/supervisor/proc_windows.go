package supervisor

import (
	"os"
	"os/exec"
)

func configure(cmd *exec.Cmd) {}

// Windows has no SIGTERM; Interrupt fails for most console tools, in which
// case the caller kills immediately.
func terminate(p *os.Process) error {
	return p.Signal(os.Interrupt)
}

func kill(p *os.Process) error {
	return p.Kill()
}

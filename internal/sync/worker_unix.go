//go:build unix

package sync

import (
	"os/exec"
	"syscall"
)

// detach puts the worker in its own process group so it outlives the
// terminal session that started it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

package sync

import (
	"os"
	"os/exec"
	"path/filepath"
)

// SpawnWorker starts a detached "worker --once" process so the calling
// command can exit while due jobs run. extraArgs are passed before the
// subcommand (for example --config).
func SpawnWorker(extraArgs ...string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return err
	}

	args := append(append([]string{}, extraArgs...), "worker", "--once")
	cmd := exec.Command(executable, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the child when it exits; the parent does not wait for it.
	go cmd.Wait()
	return nil
}

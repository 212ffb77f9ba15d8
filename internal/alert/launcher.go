package alert

import (
	"fmt"
	"log/slog"
	"os/exec"
)

// Launcher starts an alert command without waiting for it.
type Launcher interface {
	Launch(command string) error
}

// ShellLauncher runs commands with /bin/sh -c in their own process group, so
// a signal aimed at the daemon's group does not reach them. Each child is
// reaped by its own goroutine.
type ShellLauncher struct {
	// Shell defaults to /bin/sh.
	Shell string
}

// Launch implements Launcher.
func (l ShellLauncher) Launch(command string) error {
	shell := l.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.Command(shell, "-c", command)
	cmd.SysProcAttr = detachedProcAttr()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("alert: start command: %w", err)
	}

	pid := cmd.Process.Pid
	go func() {
		err := cmd.Wait()
		slog.Debug("alert: command exited", "pid", pid, "err", err)
	}()
	return nil
}

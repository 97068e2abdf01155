//go:build !windows

package backend

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// relaunch starts the current executable in its own session so it survives
// this process quitting.
func relaunch() error {
	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	binary, err = filepath.EvalSymlinks(binary)
	if err != nil {
		return fmt.Errorf("failed to resolve symlinks: %w", err)
	}

	cmd := exec.Command(binary, os.Args[1:]...)
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd.Start()
}

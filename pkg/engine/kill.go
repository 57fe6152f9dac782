package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrNotRunning is returned by KillReelcache when the PID file points at a
// process that has already exited. The stale PID file is removed.
var ErrNotRunning = errors.New("reelcache is not running")

func KillReelcache(configPath string) error {
	config, err := readConfig(configPath)
	if err != nil {
		return err
	}
	if err := resolveStoragePath(config, configPath); err != nil {
		return err
	}

	pidPath := filepath.Join(config.Storage.Path, PID_FILE)
	pid, err := readPid(pidPath)
	if err != nil {
		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process with PID %d: %w", pid, err)
	}

	// Signal 0 probes for existence without delivering anything.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		_ = os.Remove(pidPath)
		return fmt.Errorf("%w (stale PID %d)", ErrNotRunning, pid)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop process %d: %w", pid, err)
	}
	return nil
}

func readPid(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID content in %s", pidPath)
	}
	return pid, nil
}

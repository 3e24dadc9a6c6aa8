// Package daemonctl starts and stops a background autopublish daemon from
// the CLI. Liveness comes from the daemon lock, identity from the pid file.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"autopublish/internal/config"
	"autopublish/internal/daemon"
)

// ErrDaemonNotRunning is returned when no process holds the daemon lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// PIDPath is where a running daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "autopublish.pid")
}

// WritePID records the current process id at path.
func WritePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// ReadPID parses the pid file. It returns 0 when the file is absent.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %q is malformed", path)
	}
	return pid, nil
}

// Running reports whether a daemon holds the lock, and its pid when the pid
// file has been written.
func Running(cfg *config.Config) (bool, int, error) {
	lock, err := daemon.AcquireLock(cfg.Paths.LockPath)
	if errors.Is(err, daemon.ErrLocked) {
		pid, pidErr := ReadPID(PIDPath(cfg))
		return true, pid, pidErr
	}
	if err != nil {
		return false, 0, err
	}
	_ = lock.Unlock()
	return false, 0, nil
}

// StartState describes what Start did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start outcome.
type StartResult struct {
	State StartState
	PID   int
}

// Launch starts `executable daemon` detached from the terminal.
func Launch(executable, configPath string) error {
	if strings.TrimSpace(executable) == "" {
		return errors.New("resolve executable: path is empty")
	}
	args := []string{"daemon"}
	if configPath = strings.TrimSpace(configPath); configPath != "" {
		args = append(args, "--config", configPath)
	}
	proc := exec.Command(executable, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// Start launches the daemon unless one is already running, then waits up to
// timeout for it to take the lock.
func Start(cfg *config.Config, executable, configPath string, timeout time.Duration) (StartResult, error) {
	running, pid, err := Running(cfg)
	if err != nil {
		return StartResult{}, err
	}
	if running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if err := Launch(executable, configPath); err != nil {
		return StartResult{}, err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, pid, _ = Running(cfg)
		if running && pid > 0 {
			return StartResult{State: StartStateStarted, PID: pid}, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return StartResult{}, fmt.Errorf("daemon did not start within %s; check 'autopublish logs'", timeout)
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Stop sends SIGTERM, waits up to grace for the lock to be released, then
// falls back to SIGKILL.
func Stop(cfg *config.Config, grace time.Duration) (StopResult, error) {
	running, pid, err := Running(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("daemon holds %s but wrote no pid file", cfg.Paths.LockPath)
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return StopResult{}, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return StopResult{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}

	result := StopResult{PID: pid}
	if WaitForShutdown(cfg, grace) == nil {
		return result, nil
	}
	if err := proc.Kill(); err != nil {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(PIDPath(cfg)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file: %w", err)
	}
	result.ForcedKill = true
	return result, nil
}

// WaitForShutdown polls until the daemon lock is free or timeout elapses.
func WaitForShutdown(cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		running, _, err := Running(cfg)
		if err == nil && !running {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("daemon did not stop in time")
		}
		time.Sleep(200 * time.Millisecond)
	}
}

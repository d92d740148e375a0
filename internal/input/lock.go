// Package input guards the single physical pointer/keyboard resource. The
// whole process owns it via a pid lockfile; inside the process, only the bet
// executor ever holds the mutex.
package input

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// DeviceLock is the exclusive lock over the input devices. Acquire fails if a
// live process already holds the lockfile: proceeding would break the "at
// most one action in flight" guarantee, so startup must abort.
type DeviceLock struct {
	path string
	mu   sync.Mutex
}

func Acquire(path string) (*DeviceLock, error) {
	if err := createLockfile(path); err != nil {
		return nil, err
	}
	return &DeviceLock{path: path}, nil
}

func createLockfile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		pid, readErr := readPid(path)
		if readErr == nil && processAlive(pid) {
			return fmt.Errorf("input devices locked by running process %d (%s)", pid, path)
		}
		// Stale lockfile from a dead process: reclaim it.
		slog.Warn("input: reclaiming stale lockfile", "path", path, "stale_pid", pid)
		if rmErr := os.Remove(path); rmErr != nil {
			return fmt.Errorf("remove stale lockfile %s: %w", path, rmErr)
		}
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return fmt.Errorf("create lockfile %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write lockfile %s: %w", path, err)
	}
	return nil
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 probes existence without delivering anything.
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Lock takes in-process exclusive ownership of the devices for one action.
func (l *DeviceLock) Lock() { l.mu.Lock() }

func (l *DeviceLock) Unlock() { l.mu.Unlock() }

// Release removes the lockfile. Called once, at the end of shutdown.
func (l *DeviceLock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release lockfile %s: %w", l.path, err)
	}
	return nil
}

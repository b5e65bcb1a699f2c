// Package lockfile keeps two ArgPipe instances from sharing a state directory.
//
// The lock is an flock on a file inside the directory, so the kernel releases
// it when the process exits, however it exits.
package lockfile

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "argpipe.lock"

// ErrLocked reports that another process holds the state directory lock.
var ErrLocked = errors.New("state directory is locked by another process")

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Info is the owner record written into the lock file.
type Info struct {
	PID     int
	Started time.Time
}

// AcquireLock takes an exclusive, non-blocking lock on stateDir, creating the
// directory when needed. A held lock yields a *LockError matching ErrLocked.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC would wipe the owner record of a running instance before the
	// flock attempt fails, so truncate only once the lock is ours.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		owner, _ := ReadInfo(lockPath)
		slog.Error("Failed to acquire state directory lock", "lock_path", lockPath, "owner_pid", owner.PID, "error", err)
		return nil, &LockError{LockPath: lockPath, Owner: owner, Cause: err}
	}

	if err := writeInfo(file, Info{PID: os.Getpid(), Started: time.Now().UTC()}); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("Acquired state directory lock", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	var errs []error
	// Remove before unlocking so a waiting instance never sees our stale record.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, err)
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, err)
	}
	l.file = nil
	slog.Info("Released state directory lock", "lock_path", l.path)
	return errors.Join(errs...)
}

func writeInfo(file *os.File, info Info) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	content := fmt.Sprintf("pid=%d\nstarted=%s\n", info.PID, info.Started.Format(time.RFC3339))
	if _, err := file.WriteString(content); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Failed to sync lock file", "error", err)
	}
	return nil
}

// ReadInfo parses the owner record of a lock file. Unknown lines are ignored.
func ReadInfo(lockPath string) (Info, error) {
	f, err := os.Open(lockPath)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return parseInfo(bufio.NewScanner(f))
}

func parseInfo(sc *bufio.Scanner) (Info, error) {
	var info Info
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil {
				info.PID = pid
			}
		case "started":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				info.Started = t
			}
		}
	}
	return info, sc.Err()
}

// LockError describes a lock held by another process.
type LockError struct {
	LockPath string
	Owner    Info
	Cause    error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another ArgPipe instance is using this state directory (lock file %s", e.LockPath)
	switch {
	case e.Owner.PID <= 0:
		b.WriteString(", owner unknown")
	case isProcessRunning(e.Owner.PID):
		fmt.Fprintf(&b, ", held by running PID %d", e.Owner.PID)
	default:
		fmt.Fprintf(&b, ", PID %d is gone; remove the file if no other instance is running", e.Owner.PID)
	}
	b.WriteString(")")
	return b.String()
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrLocked) match.
func (e *LockError) Is(target error) bool {
	return target == ErrLocked
}

// isProcessRunning sends signal 0, which checks for existence without delivering anything.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StaleLockThreshold is the maximum age of a lock file before it is treated
// as abandoned by a crashed run and reclaimed.
const StaleLockThreshold = 10 * time.Minute

// ErrLockHeld is returned when the store lock is already held by a live run.
var ErrLockHeld = errors.New("store lock exists: another run may be in progress")

// Lock is an advisory file lock guarding a store file against concurrent
// runs in separate processes.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the advisory lock for the store at storePath. The lock
// file lives next to the store, created with O_CREATE|O_EXCL so acquisition
// is atomic. A lock older than StaleLockThreshold is reclaimed once.
func AcquireLock(storePath string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lockPath := storePath + ".lock"

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if os.IsExist(err) {
			if stale, _ := isLockStale(lockPath); stale {
				os.Remove(lockPath)
				file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
				if err != nil {
					return nil, ErrLockHeld
				}
			} else {
				return nil, ErrLockHeld
			}
		} else {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
	}

	lockData := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{path: lockPath, file: file}, nil
}

// Release drops the lock. Releasing an already-released lock is a no-op.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}

	return nil
}

// isLockStale reports whether the lock file is older than StaleLockThreshold.
func isLockStale(lockPath string) (bool, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false, err
	}
	return time.Since(info.ModTime()) > StaleLockThreshold, nil
}

package utils

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created inside every synced root while a daemon owns it.
const LockFileName = ".treesync.lock"

// LockDir takes an exclusive, non-blocking lock on dir.
// The caller must Unlock the returned lock on exit.
func LockDir(dir string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(dir, LockFileName))

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: already in use by another process", dir)
	}

	return lock, nil
}

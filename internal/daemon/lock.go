package daemon

import (
	"fmt"

	"github.com/gofrs/flock"
)

// AcquireLock takes the single-instance lock at path without blocking. The
// CLI uses it so a one-shot cycle never runs beside the daemon.
func AcquireLock(path string) (*flock.Flock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock, nil
}

package project

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"github.com/snapbox/snapbox/internal/utils"
)

// ErrProjectLocked means another process holds the project's write lock.
var ErrProjectLocked = errors.New("project locked by another process")

// Locker is the per-project advisory lock. Snapshot creation, restore and
// backup hold it for the duration of the operation; operations on different
// projects are independent.
type Locker struct {
	flock *flock.Flock
}

func NewLocker(p *Project) *Locker {
	return &Locker{flock: flock.New(p.lockPath())}
}

func (l *Locker) Lock() error {
	if err := utils.EnsureParent(l.flock.Path()); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock project: %w", err)
	}
	if !locked {
		return ErrProjectLocked
	}
	return nil
}

func (l *Locker) Unlock() error {
	// don't remove a lock file some other process owns
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock project: %w", err)
	}
	return os.Remove(l.flock.Path())
}

package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks an unknown snapshot id.
	ErrNotFound = errors.New("snapshot not found")

	// ErrProtectedSnapshot marks a deletion blocked because the snapshot is
	// the last known-backed-up point.
	ErrProtectedSnapshot = errors.New("snapshot is protected")
)

// CreationError marks a failed snapshot creation. No partial snapshot is
// visible after it; staging is discarded.
type CreationError struct {
	Label string
	Err   error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("snapshot creation failed (label %q): %v", e.Label, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// RetentionViolation reports that eviction protection kept the snapshot count
// above the retention limit. Non-fatal: the triggering operation completed.
type RetentionViolation struct {
	Limit int
	Count int
}

func (e *RetentionViolation) Error() string {
	return fmt.Sprintf("retention limit %d violated: %d snapshots kept by protection", e.Limit, e.Count)
}

// IntegrityError reports a post-restore verification mismatch. The working
// tree is left in its last verified state; the caller must retry.
type IntegrityError struct {
	SnapshotID string
	Paths      []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("restore of %s failed verification at: %s", e.SnapshotID, strings.Join(e.Paths, ", "))
}

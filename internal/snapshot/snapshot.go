// Package snapshot owns the on-disk snapshot collection of a project: the
// immutable point-in-time copies, the retention policy over them, and the
// restore engine that materializes one back onto the working tree.
package snapshot

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/snapbox/snapbox/internal/manifest"
)

// Snapshot is an immutable record of a project tree at one point in time.
// Snapshots form a linear sequence ordered by CreatedAt; there is no DAG.
type Snapshot struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	Label      string            `json:"label,omitempty"`
	TotalBytes int64             `json:"total_bytes"`
	FileCount  int               `json:"file_count"`
	Manifest   manifest.Manifest `json:"files"`
}

// NewID derives a snapshot id from its creation time and label. The second
// precision timestamp prefix keeps ids sortable; the hash suffix over
// nanoseconds and label keeps same-second creations collision resistant.
func NewID(createdAt time.Time, label string) string {
	ts := createdAt.UTC().Format("20060102-150405")
	sum := md5.Sum([]byte(fmt.Sprintf("%d|%s", createdAt.UnixNano(), label)))
	return fmt.Sprintf("%s-%s", ts, hex.EncodeToString(sum[:])[:8])
}

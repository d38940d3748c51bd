// Package remote tracks the relationship between a project's local snapshot
// lineage and its offsite mirror, and drives the one-way backup and import
// flows. The mirror is an opaque capability: push, fetch head, pull. Nothing
// here knows about transports beyond the Store implementations.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Ref is an opaque, comparable identifier of one pushed state on the remote.
type Ref string

// ErrNoRemoteHead means the remote mirror has no content yet.
var ErrNoRemoteHead = errors.New("remote has no head")

// Store is the remote version store capability. Implementations must treat
// pushes as atomic: a ref is only returned once the payload is fully stored
// and the head updated.
type Store interface {
	// Push stores the payload as the new remote head and returns its ref.
	Push(ctx context.Context, payload io.Reader) (Ref, error)

	// FetchHead reports the remote's current head, or ErrNoRemoteHead.
	FetchHead(ctx context.Context) (Ref, error)

	// Pull streams the payload stored under ref.
	Pull(ctx context.Context, ref Ref) (io.ReadCloser, error)
}

// Status is the derived reconciliation state between the local lineage and
// the remote head. Recomputed on demand, never stored.
type Status string

const (
	// StatusUnknown: no backup has ever been recorded for this project.
	StatusUnknown Status = "unknown"

	// StatusSynced: the remote head is the last local backup and no newer
	// local snapshots exist.
	StatusSynced Status = "synced"

	// StatusAheadLocal: the remote head is part of the local lineage but the
	// local project has moved past it.
	StatusAheadLocal Status = "ahead_local"

	// StatusAheadRemote: the remote head is not derivable from the local
	// lineage; something else pushed to the mirror.
	StatusAheadRemote Status = "ahead_remote"
)

// DivergenceError reports an AheadRemote mirror blocking a backup. The engine
// never auto-merges or force-pushes; the caller must pick AdoptRemote or
// OverrideRemote explicitly.
type DivergenceError struct {
	LocalRef  Ref
	RemoteRef Ref
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("remote diverged: local ref %q, remote head %q", e.LocalRef, e.RemoteRef)
}

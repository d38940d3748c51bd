package manifest

import "fmt"

// FilesystemError marks an unreadable or unwritable path that aborted an
// operation. Per-file transient errors inside a walk are skipped with a
// warning instead and never surface as this type.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error at %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// Package store defines the content store the patch engine reads and writes
// through. The engine treats any store failure as terminal for the current
// operation; it never retries on the caller's behalf.
package store

import "context"

// ContentStore abstracts the host's file content access. Paths are
// workspace-relative unless the implementation documents otherwise.
type ContentStore interface {
	// Read returns the full content of the file at path.
	Read(ctx context.Context, path string) (string, error)

	// Write replaces the content of the file at path, creating it if needed.
	Write(ctx context.Context, path, content string) error

	// List returns the workspace-relative paths of regular files under dir.
	List(ctx context.Context, dir string) ([]string, error)
}

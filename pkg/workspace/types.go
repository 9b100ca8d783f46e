package workspace

import (
	"context"
	"errors"
)

var (
	// ErrPathEscapesRoot is returned when a path resolves outside the workspace root.
	ErrPathEscapesRoot = errors.New("path escapes workspace root")

	// ErrInvalidPath is returned for empty or malformed paths.
	ErrInvalidPath = errors.New("invalid workspace path")

	// ErrNotFound is returned when a file does not exist in the workspace.
	ErrNotFound = errors.New("file not found in workspace")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("workspace store is closed")
)

// FileEntry is one file of the workspace.
type FileEntry struct {
	Path    string `json:"path" validate:"required"`
	Content string `json:"content"`
}

// Store is the capability interface shared by the workspace backends.
// Implementations are not safe for concurrent use; callers serialize
// operations on one workspace.
type Store interface {
	// Kind names the backend ("memory" or "dir").
	Kind() string

	// Reset removes every file.
	Reset(ctx context.Context) error

	// List returns every file, sorted by path.
	List(ctx context.Context) ([]FileEntry, error)

	// Read returns the content of one file, or ErrNotFound.
	Read(ctx context.Context, path string) (string, error)

	// Write upserts the given files. All paths are checked before any write.
	Write(ctx context.Context, files ...FileEntry) error

	// Materialize returns a directory holding the current files, and a
	// cleanup function that must be called once the directory is no longer
	// needed.
	Materialize(ctx context.Context) (dir string, cleanup func(), err error)

	// Close tears the workspace down.
	Close() error
}

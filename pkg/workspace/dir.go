package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DirStore is a Store confined to a root directory on disk. Validation runs
// in place inside the root.
type DirStore struct {
	root   string
	closed bool
}

// NewDirStore creates the root if needed and returns a store confined to it.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: workspace root is required", ErrInvalidPath)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	// Resolve symlinks once so containment checks compare real paths.
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &DirStore{root: abs}, nil
}

// Root returns the absolute workspace root.
func (d *DirStore) Root() string { return d.root }

// Kind implements Store.
func (d *DirStore) Kind() string { return "dir" }

// resolve maps a workspace path to an absolute path inside the root.
func (d *DirStore) resolve(path string) (string, string, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return "", "", err
	}
	abs := filepath.Join(d.root, filepath.FromSlash(clean))
	if !within(d.root, abs) {
		return "", "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, path)
	}
	// An existing symlink along the way must not lead outside the root.
	if real, ok := nearestReal(d.root, abs); ok && real != d.root && !within(d.root, real) {
		return "", "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, path)
	}
	return clean, abs, nil
}

// nearestReal resolves the deepest existing ancestor of abs (abs included)
// and re-attaches the missing tail.
func nearestReal(root, abs string) (string, bool) {
	tail := ""
	for p := abs; p != root && p != filepath.Dir(p); p = filepath.Dir(p) {
		if real, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(real, tail), true
		}
		tail = filepath.Join(filepath.Base(p), tail)
	}
	return "", false
}

// Reset removes the root recursively and recreates it empty.
func (d *DirStore) Reset(_ context.Context) error {
	if d.closed {
		return ErrClosed
	}
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("failed to remove workspace root: %w", err)
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("failed to recreate workspace root: %w", err)
	}
	return nil
}

// List implements Store.
func (d *DirStore) List(_ context.Context) ([]FileEntry, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure workspace root: %w", err)
	}
	return ReadTree(d.root)
}

// Read implements Store.
func (d *DirStore) Read(_ context.Context, path string) (string, error) {
	if d.closed {
		return "", ErrClosed
	}
	clean, abs, err := d.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", clean, err)
	}
	return string(data), nil
}

// Write implements Store.
func (d *DirStore) Write(_ context.Context, files ...FileEntry) error {
	if d.closed {
		return ErrClosed
	}
	clean := make([]FileEntry, len(files))
	for i, f := range files {
		p, _, err := d.resolve(f.Path)
		if err != nil {
			return err
		}
		clean[i] = FileEntry{Path: p, Content: f.Content}
	}
	return WriteTree(d.root, clean)
}

// Materialize returns the root itself; there is nothing to clean up.
func (d *DirStore) Materialize(_ context.Context) (string, func(), error) {
	if d.closed {
		return "", nil, ErrClosed
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to ensure workspace root: %w", err)
	}
	return d.root, func() {}, nil
}

// Close marks the store closed. The directory is left on disk; call Reset
// first to tear its content down.
func (d *DirStore) Close() error {
	d.closed = true
	return nil
}

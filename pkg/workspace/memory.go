package workspace

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// MemoryStore is a map-backed Store. Processes see its files through a fresh
// temporary directory created on every Materialize call.
type MemoryStore struct {
	files   map[string]string
	tempDir string
	closed  bool
}

// NewMemoryStore creates an empty in-memory workspace. tempDir is the parent
// for materialized directories; empty means os.TempDir().
func NewMemoryStore(tempDir string) *MemoryStore {
	return &MemoryStore{
		files:   make(map[string]string),
		tempDir: tempDir,
	}
}

// Kind implements Store.
func (m *MemoryStore) Kind() string { return "memory" }

// Reset implements Store.
func (m *MemoryStore) Reset(_ context.Context) error {
	if m.closed {
		return ErrClosed
	}
	m.files = make(map[string]string)
	return nil
}

// List implements Store. Like a directory listing it skips the plugin
// cache.
func (m *MemoryStore) List(_ context.Context) ([]FileEntry, error) {
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]FileEntry, 0, len(m.files))
	for p, c := range m.files {
		if inPluginCache(p) {
			continue
		}
		out = append(out, FileEntry{Path: p, Content: c})
	}
	sortEntries(out)
	return out, nil
}

// Read implements Store.
func (m *MemoryStore) Read(_ context.Context, path string) (string, error) {
	if m.closed {
		return "", ErrClosed
	}
	clean, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	content, ok := m.files[clean]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	return content, nil
}

// Write implements Store.
func (m *MemoryStore) Write(_ context.Context, files ...FileEntry) error {
	if m.closed {
		return ErrClosed
	}
	clean, err := CleanPaths(files)
	if err != nil {
		return err
	}
	for _, f := range clean {
		m.files[f.Path] = f.Content
	}
	return nil
}

// Materialize writes every file into a new uniquely named temporary directory.
func (m *MemoryStore) Materialize(ctx context.Context) (string, func(), error) {
	if m.closed {
		return "", nil, ErrClosed
	}
	dir, err := os.MkdirTemp(m.tempDir, "tfsandbox-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create materialization directory: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	files, err := m.List(ctx)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	if err := WriteTree(dir, files); err != nil {
		cleanup()
		return "", nil, err
	}
	return dir, cleanup, nil
}

// Close drops every file; the store cannot be used afterwards.
func (m *MemoryStore) Close() error {
	m.files = nil
	m.closed = true
	return nil
}

package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// pluginCacheDir is the directory terraform init fills with providers and
// modules. It is never part of the workspace content.
const pluginCacheDir = ".terraform"

// inPluginCache reports whether a clean slash path lies under a plugin cache
// directory at any depth.
func inPluginCache(p string) bool {
	dirs := strings.Split(p, "/")
	for _, d := range dirs[:len(dirs)-1] {
		if d == pluginCacheDir {
			return true
		}
	}
	return false
}

// ReadTree walks dir and returns every regular file as a root-relative,
// slash-separated entry sorted by path. Symlinks and the plugin cache
// directory are skipped.
func ReadTree(dir string) ([]FileEntry, error) {
	var out []FileEntry

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if d.IsDir() && d.Name() == pluginCacheDir {
			return filepath.SkipDir
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		out = append(out, FileEntry{Path: filepath.ToSlash(rel), Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	sortEntries(out)
	return out, nil
}

// WriteTree writes files under dir, creating parent directories. Paths must
// already be clean.
func WriteTree(dir string, files []FileEntry) error {
	for _, f := range files {
		abs := filepath.Join(dir, filepath.FromSlash(f.Path))
		if !within(dir, abs) {
			return fmt.Errorf("%w: %s", ErrPathEscapesRoot, f.Path)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", f.Path, err)
		}
		if err := atomicWrite(abs, []byte(f.Content)); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tfsandbox-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		return err
	}
	return os.Rename(name, path)
}

func sortEntries(entries []FileEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
}

package workspace

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// CleanPath normalizes a workspace-relative path to its slash-separated clean
// form and enforces confinement.
func CleanPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(p, 0) || strings.Contains(p, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	if path.IsAbs(p) || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, p)
	}

	clean := path.Clean(p)
	switch {
	case clean == ".":
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	case clean == "..", strings.HasPrefix(clean, "../"):
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, p)
	}
	return clean, nil
}

// CleanPaths checks every path of files, returning the first violation.
func CleanPaths(files []FileEntry) ([]FileEntry, error) {
	out := make([]FileEntry, len(files))
	for i, f := range files {
		clean, err := CleanPath(f.Path)
		if err != nil {
			return nil, err
		}
		out[i] = FileEntry{Path: clean, Content: f.Content}
	}
	return out, nil
}

// within reports whether abs lies strictly inside root.
func within(root, abs string) bool {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

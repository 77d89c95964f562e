// Package pathutil provides path resolution and display helpers shared by the
// drivers, the manifest preview and the dispatcher.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveAbsolutePath converts a dataset or output root to an absolute path.
// Symlinks are resolved in the existing portion of the path and any
// non-existent trailing components are appended unchanged, so an output
// root that has not been created yet still resolves.
func ResolveAbsolutePath(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = home + path[1:]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved, nil
	}

	current := absPath
	var remainder []string
	for {
		if _, err := os.Stat(current); err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				resolved = current
			}
			for i := len(remainder) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, remainder[i])
			}
			return resolved, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absPath, nil
		}
		remainder = append(remainder, filepath.Base(current))
		current = parent
	}
}

// StripRoots returns path relative to the first root it lies under.
// Paths outside every root, and values that are not paths at all, are
// returned unchanged. The result never starts with a separator, so
// "/data/sub-01/anat/x.nii.gz" under "/data" becomes "sub-01/anat/x.nii.gz".
func StripRoots(path string, roots ...string) string {
	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if path == root {
			return "."
		}
		prefix := root
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return strings.TrimLeft(path[len(prefix):], string(filepath.Separator))
		}
	}
	return path
}

// StripAll applies StripRoots to every value.
func StripAll(values []string, roots ...string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = StripRoots(v, roots...)
	}
	return out
}

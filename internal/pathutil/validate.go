// Package pathutil confines caller-supplied paths to a set of root
// directories. The MCP server uses it for every path a tool accepts.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Redact shortens path to its last two elements for error messages.
func Redact(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// Confine resolves path and returns it when it lies inside one of roots.
// Symlinks are resolved on the deepest existing ancestor, so paths that do
// not exist yet can still be checked.
func Confine(path string, roots ...string) (string, error) {
	switch {
	case path == "":
		return "", fmt.Errorf("path is empty")
	case len(roots) == 0:
		return "", fmt.Errorf("no allowed directories configured")
	case strings.ContainsRune(path, 0):
		return "", fmt.Errorf("path contains null byte")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", Redact(path), err)
	}
	resolved, err := resolve(abs)
	if err != nil {
		return "", err
	}

	for _, root := range roots {
		if root == "" {
			continue
		}
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootResolved, err := resolve(rootAbs)
		if err != nil {
			continue
		}
		if within(resolved, rootResolved) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%s is outside allowed directories", Redact(abs))
}

// resolve evaluates symlinks on the deepest existing ancestor of abs and
// re-appends the missing tail.
func resolve(abs string) (string, error) {
	var tail []string
	cur := abs
	for {
		if r, err := filepath.EvalSymlinks(cur); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				r = filepath.Join(r, tail[i])
			}
			return r, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("cannot resolve %s", Redact(abs))
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

// within reports whether path equals base or lies beneath it.
func within(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(base, string(os.PathSeparator))+string(os.PathSeparator))
}

// DataRoots returns the directories tools may read scenarios from and write
// outputs to: the directory holding dataPath (or dataPath itself when it is
// a directory) plus extra.
func DataRoots(dataPath string, extra ...string) []string {
	var roots []string
	if dataPath != "" {
		if info, err := os.Stat(dataPath); err == nil && info.IsDir() {
			roots = append(roots, dataPath)
		} else {
			roots = append(roots, filepath.Dir(dataPath))
		}
	}
	for _, e := range extra {
		if e != "" {
			roots = append(roots, e)
		}
	}
	return roots
}

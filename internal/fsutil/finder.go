// Package fsutil provides file system utility functions.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob returns the files under root matching a doublestar pattern, as
// sorted slash-separated paths relative to root. A pattern without glob
// syntax is returned unchanged, whether or not the file exists, so the
// caller reports a missing file when it opens it.
func Glob(root, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	if !strings.ContainsAny(pattern, "*?[{") {
		return []string{pattern}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ListDirs returns the names of the immediate subdirectories of root, sorted.
// A missing root yields no directories and no error.
func ListDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// FindFirst returns the first existing regular file in dir named base plus
// one of the extensions, trying extensions in order. ok is false when none
// exists.
func FindFirst(dir, base string, extensions ...string) (path string, ok bool, err error) {
	for _, ext := range extensions {
		candidate := filepath.Join(dir, base+ext)
		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", false, err
		}
		if !info.IsDir() {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

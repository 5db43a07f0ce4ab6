// Package scanner is the Filesystem Scanner (C4): enumerates supported
// audio files under the library root, walking the tree with
// filepath.WalkDir and filtering with tagreader.IsSupported. Full serves a
// rebuild (with a count); Delta serves a resync, diffed by the caller
// against the Index Store.
package scanner

import (
	"os"
	"path/filepath"

	"github.com/nilsaxelsson/musiclib/internal/tagreader"
	"github.com/nilsaxelsson/musiclib/pkg/ids"
)

// Scanner enumerates audio files under a canonicalized library root.
type Scanner struct {
	root string
}

// New canonicalizes root and returns a Scanner. An error here is fatal to
// startup — an unreadable library root makes the whole system useless.
func New(root string) (*Scanner, error) {
	canonical, err := ids.Canonicalize(root)
	if err != nil {
		return nil, err
	}
	return &Scanner{root: canonical}, nil
}

// Root returns the canonicalized library root.
func (s *Scanner) Root() string { return s.root }

// Full walks the entire tree and returns every supported audio file's
// canonical path, for rebuild(). The count is len(result), returned
// separately only for symmetry with callers that want it without a second
// len() call at the use site.
func (s *Scanner) Full() (paths []string, count int, err error) {
	err = filepath.WalkDir(s.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			// A single unreadable directory is a transient filesystem
			// condition, not fatal to the whole scan — skip it and continue.
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !tagreader.IsSupported(path) {
			return nil
		}
		canonical, cErr := ids.Canonicalize(path)
		if cErr != nil {
			return nil
		}
		if !ids.Under(s.root, canonical) {
			return nil
		}
		paths = append(paths, canonical)
		return nil
	})
	return paths, len(paths), err
}

// Delta is the same enumeration as Full, used by a resync — the caller
// diffs the returned set against Store.AllPaths() to find additions and
// removals. The method is distinct from Full only in name; the underlying
// walk is identical.
func (s *Scanner) Delta() ([]string, error) {
	paths, _, err := s.Full()
	return paths, err
}

// Package ids provides path canonicalization and content-addressing helpers
// shared by the Filesystem Scanner, Change Watcher and Transcode Cache. Identity is derived from a canonicalized path digest rather than
// file content, since a transcode derivative's identity tracks its source
// location, not its bytes.
package ids

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// Canonicalize resolves path to an absolute, symlink-resolved form. It never
// fails the caller for a non-existent path — it falls back to a plain
// absolute path so callers can canonicalize paths that are about to be
// created (e.g. a rename target) without special-casing existence.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Path may not exist yet (e.g. deletion events) — abs is still a
		// valid canonical form for identity purposes.
		return abs, nil
	}
	return resolved, nil
}

// Under reports whether path (already canonical) lies under root (already
// canonical). Both must be produced by Canonicalize for this to be
// meaningful — it is a pure string-prefix check on path elements, not a
// filesystem walk.
func Under(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// PathDigest returns a stable hex digest of a canonical path string, used as
// the content-addressed identity for transcode cache derivatives. MD5 is
// used purely for stable addressing, not for any security purpose.
func PathDigest(canonicalPath string) string {
	sum := md5.Sum([]byte(canonicalPath))
	return hex.EncodeToString(sum[:])
}

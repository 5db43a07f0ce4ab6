// Package muserr defines the error-kind taxonomy shared across musiclib's
// components. Call sites wrap an underlying error with a Kind so callers can
// branch with muserr.Is (built on errors.As) instead of matching on strings.
package muserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into a small, stable taxonomy that call sites can
// branch on without depending on error message text.
type Kind int

const (
	// KindNotFound: requested slug/path absent.
	KindNotFound Kind = iota
	// KindInvalidInput: malformed query, invalid cover data, unknown quality.
	KindInvalidInput
	// KindReadCorruption: a stored document could not be parsed.
	KindReadCorruption
	// KindIndexUnavailable: Index Store read failed during reconciliation.
	KindIndexUnavailable
	// KindTranscodeFailed: encoder nonzero exit or timeout.
	KindTranscodeFailed
	// KindFilesystemTransient: per-file tag read or stat error during scan.
	KindFilesystemTransient
	// KindFatal: commit failure, database unreachable, status file unwritable.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindReadCorruption:
		return "read_corruption"
	case KindIndexUnavailable:
		return "index_unavailable"
	case KindTranscodeFailed:
		return "transcode_failed"
	case KindFilesystemTransient:
		return "filesystem_transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind for op, wrapping err (which may be nil).
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

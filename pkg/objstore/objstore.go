// Package objstore provides an abstraction over storage backends for audio files.
package objstore

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the interface all storage backends implement.
type ObjectStore interface {
	// Put stores a new object. r is read exactly once; size is the total byte count.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Delete removes an object. A non-existent key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether the object with the given key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Size returns the byte length of the object.
	Size(ctx context.Context, key string) (int64, error)
	// ModTime returns the object's last-write time, used by the Transcode
	// Cache to compare a derivative's freshness against its source file.
	ModTime(ctx context.Context, key string) (time.Time, error)
	// List enumerates every stored key, used by the Transcode Cache to
	// report cache size and to sweep stale derivatives.
	List(ctx context.Context) ([]string, error)
}

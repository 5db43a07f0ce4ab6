// Package transcode is the Transcoding Cache (C9): a content-addressed
// store of lossy derivatives of lossless source files, keyed by the source
// path's digest plus the requested quality. Derivative bytes land in a
// pkg/objstore.ObjectStore rather than bare filesystem calls, and concurrent
// requests for the same (path, quality) are coalesced with a hand-rolled
// single-flight built on sync.WaitGroup.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nilsaxelsson/musiclib/pkg/ids"
	"github.com/nilsaxelsson/musiclib/pkg/muserr"
	"github.com/nilsaxelsson/musiclib/pkg/objstore"
)

// Quality is a transcode target. Original means "serve the source file
// unmodified" and never produces a cache entry.
type Quality string

const (
	QualityOriginal Quality = "original"
	QualityHigh     Quality = "high"
	QualityMedium   Quality = "medium"
	QualityLow      Quality = "low"
)

// bitrates is the quality ladder.
var bitrates = map[Quality]string{
	QualityHigh:   "256k",
	QualityMedium: "192k",
	QualityLow:    "128k",
}

// transcodeExts are source extensions that benefit from transcoding to a
// lossy, universally-playable format; anything else is already compressed
// and is served as-is regardless of the requested quality.
var transcodeExts = map[string]bool{
	".flac":  true,
	".wav":   true,
	".aiff":  true,
	".ape":   true,
	".alac":  true,
}

// ShouldTranscode reports whether sourcePath at quality needs a derivative
// at all.
func ShouldTranscode(sourcePath string, quality Quality) bool {
	if quality == QualityOriginal {
		return false
	}
	return transcodeExts[strings.ToLower(filepath.Ext(sourcePath))]
}

// ValidQuality reports whether quality is one of the recognized values
// (original, high, medium, low). A caller-supplied quality outside this set
// is an InvalidInput per spec §8's boundary behaviors, not a silent
// pass-through — an unrecognized quality has no bitrate to transcode at.
func ValidQuality(quality Quality) bool {
	switch quality {
	case QualityOriginal, QualityHigh, QualityMedium, QualityLow:
		return true
	default:
		return false
	}
}

// Cache resolves (and lazily produces) transcoded derivatives.
type Cache struct {
	store       objstore.ObjectStore
	encoderPath string
	timeout     time.Duration

	mu       sync.Mutex
	inflight map[string]*call
}

type call struct {
	wg  sync.WaitGroup
	err error
}

// New returns a Cache. encoderPath is the external encoder binary to invoke
// (e.g. "ffmpeg" resolved via PATH); timeout bounds a single transcode run.
func New(store objstore.ObjectStore, encoderPath string, timeout time.Duration) *Cache {
	return &Cache{
		store:       store,
		encoderPath: encoderPath,
		timeout:     timeout,
		inflight:    make(map[string]*call),
	}
}

// Key returns the content-addressed cache key for sourcePath at quality.
func Key(sourcePath string, quality Quality) string {
	canonical, err := ids.Canonicalize(sourcePath)
	if err != nil {
		canonical = sourcePath
	}
	digest := ids.PathDigest(canonical)
	return fmt.Sprintf("%s_%s_%s.mp3", digest, quality, bitrates[quality])
}

// Resolve returns the cache key to serve sourcePath at quality, transcoding
// it first if no fresh derivative exists yet. If quality doesn't require
// transcoding for this source, ok is false and the caller should serve
// sourcePath directly.
func (c *Cache) Resolve(ctx context.Context, sourcePath string, quality Quality) (key string, ok bool, err error) {
	if !ValidQuality(quality) {
		return "", false, muserr.New(muserr.KindInvalidInput, "Resolve", fmt.Errorf("unknown quality %q", quality))
	}
	if !ShouldTranscode(sourcePath, quality) {
		return "", false, nil
	}
	key = Key(sourcePath, quality)

	fresh, err := c.isFresh(ctx, sourcePath, key)
	if err != nil {
		return "", false, err
	}
	if fresh {
		return key, true, nil
	}

	if err := c.do(key, func() error {
		// Re-check freshness now that we hold the single-flight slot: a
		// concurrent caller may have just finished the same transcode.
		fresh, err := c.isFresh(ctx, sourcePath, key)
		if err != nil {
			return err
		}
		if fresh {
			return nil
		}
		return c.transcodeFile(ctx, sourcePath, quality, key)
	}); err != nil {
		return "", false, err
	}
	return key, true, nil
}

// IsCached reports whether sourcePath already has a fresh derivative for
// quality, without producing one — used by the cache-warming pool to skip
// already-warm jobs and to find stale ones before a regenerate pass.
func (c *Cache) IsCached(ctx context.Context, sourcePath string, quality Quality) (bool, error) {
	if !ValidQuality(quality) {
		return false, muserr.New(muserr.KindInvalidInput, "IsCached", fmt.Errorf("unknown quality %q", quality))
	}
	if !ShouldTranscode(sourcePath, quality) {
		return true, nil
	}
	return c.isFresh(ctx, sourcePath, Key(sourcePath, quality))
}

// isFresh reports whether key is already cached with an mtime at or after
// sourcePath's mtime.
func (c *Cache) isFresh(ctx context.Context, sourcePath, key string) (bool, error) {
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return false, muserr.New(muserr.KindFilesystemTransient, "isFresh", err)
	}
	if !exists {
		return false, nil
	}
	derivative, err := c.store.ModTime(ctx, key)
	if err != nil {
		return false, muserr.New(muserr.KindFilesystemTransient, "isFresh", err)
	}
	src, err := os.Stat(sourcePath)
	if err != nil {
		return false, muserr.New(muserr.KindNotFound, "isFresh", err)
	}
	return !derivative.Before(src.ModTime()), nil
}

func (c *Cache) do(key string, fn func() error) error {
	c.mu.Lock()
	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		cl.wg.Wait()
		return cl.err
	}
	cl := &call{}
	cl.wg.Add(1)
	c.inflight[key] = cl
	c.mu.Unlock()

	cl.err = fn()
	cl.wg.Done()

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	return cl.err
}

// transcodeFile invokes the external encoder and stores its output under
// key. A failed run's partial output is discarded rather than cached.
func (c *Cache) transcodeFile(ctx context.Context, sourcePath string, quality Quality, key string) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tmp, err := os.CreateTemp("", "musiclib-transcode-*.mp3")
	if err != nil {
		return muserr.New(muserr.KindTranscodeFailed, "transcodeFile", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	bitrate := bitrates[quality]
	args := []string{
		"-y",
		"-i", sourcePath,
		"-vn",
		"-ar", "44100",
		"-ac", "2",
		"-b:a", bitrate,
		"-map_metadata", "0",
		"-id3v2_version", "3",
		tmpPath,
	}

	cmd := exec.CommandContext(runCtx, c.encoderPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(tmpPath)
		return muserr.New(muserr.KindTranscodeFailed, "transcodeFile",
			fmt.Errorf("%s %s: %w: %s", c.encoderPath, sourcePath, err, stderr.String()))
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return muserr.New(muserr.KindTranscodeFailed, "transcodeFile", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return muserr.New(muserr.KindTranscodeFailed, "transcodeFile", err)
	}

	if err := c.store.Put(runCtx, key, f, info.Size()); err != nil {
		return muserr.New(muserr.KindTranscodeFailed, "transcodeFile", err)
	}
	return nil
}

// Size returns the total number of bytes held in the cache.
func (c *Cache) Size(ctx context.Context) (int64, error) {
	keys, err := c.store.List(ctx)
	if err != nil {
		return 0, muserr.New(muserr.KindFilesystemTransient, "Size", err)
	}
	var total int64
	for _, k := range keys {
		n, err := c.store.Size(ctx, k)
		if err != nil {
			continue
		}
		total += n
	}
	return total, nil
}

// Clear removes every cached derivative whose modification time is older
// than maxAge (0 removes everything), mirroring clear_cache(older_than_days).
func (c *Cache) Clear(ctx context.Context, maxAge time.Duration) (removed int, err error) {
	keys, err := c.store.List(ctx)
	if err != nil {
		return 0, muserr.New(muserr.KindFilesystemTransient, "Clear", err)
	}
	cutoff := time.Now().Add(-maxAge)
	for _, k := range keys {
		if maxAge > 0 {
			mt, err := c.store.ModTime(ctx, k)
			if err == nil && mt.After(cutoff) {
				continue
			}
		}
		if err := c.store.Delete(ctx, k); err != nil {
			return removed, muserr.New(muserr.KindFilesystemTransient, "Clear", err)
		}
		removed++
	}
	return removed, nil
}

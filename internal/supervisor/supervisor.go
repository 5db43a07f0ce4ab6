// Package supervisor is the Indexer Supervisor (C6): the single writer
// that turns the Filesystem Scanner's enumerations and the Change Watcher's
// debounced events into Index Store mutations, publishing phase/progress to
// the Indexing Status Publisher as it goes. Grounded on original_source's
// _extractor.py — CollectionExtractor.is_synced_with_filesystem's random
// sample freshness check, rebuild()'s delete-then-reindex-with-progress-log,
// resync()'s db-vs-filesystem set diff — translated into the component
// through which all pkg/store writes pass. It does not itself serialize
// concurrent calls to its methods; individual store writes are serialized
// by pkg/store's own write mutex.
package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nilsaxelsson/musiclib/internal/scanner"
	"github.com/nilsaxelsson/musiclib/internal/status"
	"github.com/nilsaxelsson/musiclib/internal/tagreader"
	"github.com/nilsaxelsson/musiclib/internal/watcher"
	"github.com/nilsaxelsson/musiclib/pkg/store"
)

// Supervisor owns the Index Store's write path: rebuild, resync, and the
// watcher-driven incremental updates all funnel through the same goroutine
// that calls its exported methods, since nothing here is reentrant-safe
// across concurrent rebuild/resync/watch calls (callers serialize those
// themselves, typically from one CLI invocation at a time).
type Supervisor struct {
	idx     *store.Store
	scan    *scanner.Scanner
	watch   *watcher.Watcher
	pub     *status.Publisher
	log     *logrus.Entry

	freshnessSample int
	progressEvery   int

	mu      sync.Mutex
	closing bool
}

// New returns a Supervisor. watch may be nil if incremental watching isn't
// wanted (e.g. a one-shot "index" CLI invocation).
func New(idx *store.Store, scan *scanner.Scanner, watch *watcher.Watcher, pub *status.Publisher, freshnessSample, progressEvery int, log *logrus.Entry) *Supervisor {
	if freshnessSample <= 0 {
		freshnessSample = 200
	}
	if progressEvery <= 0 {
		progressEvery = 150
	}
	return &Supervisor{
		idx:             idx,
		scan:            scan,
		watch:           watch,
		pub:             pub,
		log:             log,
		freshnessSample: freshnessSample,
		progressEvery:   progressEvery,
	}
}

// Initialize brings the store up to date on startup: a full rebuild if the
// store is empty, otherwise a freshness-sampled resync.
func (s *Supervisor) Initialize(ctx context.Context) error {
	n, err := s.idx.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.Rebuild(ctx)
	}

	fresh, err := s.isSyncedWithFilesystem(ctx)
	if err != nil {
		return err
	}
	if fresh {
		return nil
	}
	return s.Resync(ctx)
}

// mtimeSeconds converts a FileInfo's modification time to floating-point
// seconds since the epoch, preserving sub-second precision so a freshness
// sample (isSyncedWithFilesystem) can detect changes quicker than a one
// second filesystem clock.
func mtimeSeconds(info os.FileInfo) float64 {
	t := info.ModTime()
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// isSyncedWithFilesystem samples up to freshnessSample rows at random and
// checks each still exists on disk with a matching mtime, mirroring
// is_synced_with_filesystem(sample_size=200). Any mismatch means "not
// synced" — it does not identify which rows drifted, only that resync is
// warranted.
func (s *Supervisor) isSyncedWithFilesystem(ctx context.Context) (bool, error) {
	sample, err := s.idx.SampleRandom(ctx, s.freshnessSample)
	if err != nil {
		return false, err
	}
	for _, row := range sample {
		info, statErr := os.Stat(row.Path)
		if statErr != nil {
			return false, nil
		}
		if mtimeSeconds(info) != row.Mtime {
			return false, nil
		}
	}
	return true, nil
}

// Rebuild clears the store and reindexes every file under the library root
// from scratch, publishing rebuilding progress every progressEvery files.
func (s *Supervisor) Rebuild(ctx context.Context) error {
	if err := s.pub.Publish(status.PhaseRebuilding, 0, 0); err != nil && s.log != nil {
		s.log.WithError(err).Warn("failed to publish rebuild status")
	}
	defer s.clearStatus()

	if s.watch != nil {
		s.watch.Pause()
		defer s.watch.Resume()
	}

	if err := s.idx.Clear(ctx); err != nil {
		return err
	}

	paths, total, err := s.scan.Full()
	if err != nil {
		return err
	}

	for i, p := range paths {
		if err := s.indexOne(ctx, p); err != nil && s.log != nil {
			s.log.WithError(err).WithField("path", p).Warn("failed to index file during rebuild")
		}
		if (i+1)%s.progressEvery == 0 || i+1 == total {
			if err := s.pub.Publish(status.PhaseRebuilding, total, i+1); err != nil && s.log != nil {
				s.log.WithError(err).Warn("failed to publish rebuild progress")
			}
		}
	}
	return nil
}

// Resync diffs the filesystem against the store and applies only the
// additions and removals, mirroring resync()'s set-diff approach — far
// cheaper than Rebuild for a collection that mostly hasn't changed.
func (s *Supervisor) Resync(ctx context.Context) error {
	if err := s.pub.Publish(status.PhaseResyncing, 0, 0); err != nil && s.log != nil {
		s.log.WithError(err).Warn("failed to publish resync status")
	}
	defer s.clearStatus()

	if s.watch != nil {
		s.watch.Pause()
		defer s.watch.Resume()
	}

	fsPaths, err := s.scan.Delta()
	if err != nil {
		return err
	}
	dbPaths, err := s.idx.AllPaths(ctx)
	if err != nil {
		return err
	}

	fsSet := make(map[string]bool, len(fsPaths))
	for _, p := range fsPaths {
		fsSet[p] = true
	}
	dbSet := make(map[string]bool, len(dbPaths))
	for _, p := range dbPaths {
		dbSet[p] = true
	}

	var toAdd, toRemove []string
	for p := range fsSet {
		if !dbSet[p] {
			toAdd = append(toAdd, p)
		}
	}
	for p := range dbSet {
		if !fsSet[p] {
			toRemove = append(toRemove, p)
		}
	}

	total := len(toAdd) + len(toRemove)
	done := 0
	for _, p := range toRemove {
		if err := s.idx.DeleteTrack(ctx, p); err != nil && s.log != nil {
			s.log.WithError(err).WithField("path", p).Warn("failed to remove stale track during resync")
		}
		done++
		s.maybePublishResync(total, done)
	}
	for _, p := range toAdd {
		if err := s.indexOne(ctx, p); err != nil && s.log != nil {
			s.log.WithError(err).WithField("path", p).Warn("failed to index file during resync")
		}
		done++
		s.maybePublishResync(total, done)
	}
	return nil
}

func (s *Supervisor) maybePublishResync(total, done int) {
	if done%s.progressEvery == 0 || done == total {
		if err := s.pub.Publish(status.PhaseResyncing, total, done); err != nil && s.log != nil {
			s.log.WithError(err).Warn("failed to publish resync progress")
		}
	}
}

func (s *Supervisor) clearStatus() {
	if err := s.pub.Clear(); err != nil && s.log != nil {
		s.log.WithError(err).Warn("failed to clear indexing status")
	}
}

// indexOne reads tags from path and upserts the resulting row.
func (s *Supervisor) indexOne(ctx context.Context, path string) error {
	rec := tagreader.Read(path)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return s.idx.UpsertTrack(ctx, store.UpsertTrackParams{
		Path:        path,
		Filename:    filepath.Base(path),
		Artist:      rec.Artist,
		Album:       rec.Album,
		Title:       rec.Title,
		AlbumArtist: rec.AlbumArtist,
		Genre:       rec.Genre,
		Year:        rec.Year,
		Duration:    rec.Duration,
		Mtime:       mtimeSeconds(info),
	})
}

// StartWatch begins applying the Change Watcher's debounced events to the
// store, blocking until ctx is canceled or Close is called. Intended to run
// in its own goroutine.
func (s *Supervisor) StartWatch(ctx context.Context) {
	if s.watch == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watch.Events():
			if !ok {
				return
			}
			s.applyWatchEvent(ctx, ev)
		}
	}
}

func (s *Supervisor) applyWatchEvent(ctx context.Context, ev watcher.Event) {
	var err error
	switch ev.Kind {
	case watcher.EventReindex:
		err = s.indexOne(ctx, ev.Path)
	case watcher.EventDelete:
		err = s.idx.DeleteTrack(ctx, ev.Path)
	}
	if err != nil && s.log != nil {
		s.log.WithError(err).WithField("path", ev.Path).Warn("failed to apply watch event")
	}
}

// Close stops the watcher, if any, flushing pending debounced events first.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil
	}
	s.closing = true
	if s.watch != nil {
		return s.watch.Close()
	}
	return nil
}

package cachepool

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nilsaxelsson/musiclib/internal/transcode"
	"github.com/nilsaxelsson/musiclib/pkg/objstore"
)

func newTestCache(t *testing.T) (*transcode.Cache, string) {
	t.Helper()
	store, err := objstore.NewLocalFS(t.TempDir())
	require.NoError(t, err)

	scriptDir := t.TempDir()
	encoder := filepath.Join(scriptDir, "fake-encoder.sh")
	script := "#!/bin/sh\neval output=\\${$#}\nprintf 'mp3' > \"$output\"\n"
	require.NoError(t, os.WriteFile(encoder, []byte(script), 0o755))

	return transcode.New(store, encoder, 5*time.Second), t.TempDir()
}

func makeSources(t *testing.T, dir string, names ...string) []Job {
	t.Helper()
	var jobs []Job
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("lossless"), 0o644))
		jobs = append(jobs, Job{Path: p, Quality: transcode.QualityHigh})
	}
	return jobs
}

func TestWarmSerialReportsProgressInOrder(t *testing.T) {
	cache, dir := newTestCache(t)
	jobs := makeSources(t, dir, "a.flac", "b.flac", "c.flac")
	pool := New(cache, 2)

	var seen []int
	results := pool.WarmSerial(context.Background(), jobs, func(done, total int, r Result) {
		seen = append(seen, done)
		require.NoError(t, r.Err)
	})
	require.Len(t, results, 3)
	require.Equal(t, []int{1, 2, 3}, seen)
}

func TestWarmParallelCompletesAllJobs(t *testing.T) {
	cache, dir := newTestCache(t)
	jobs := makeSources(t, dir, "a.flac", "b.flac", "c.flac", "d.flac")
	pool := New(cache, 2)

	var mu sync.Mutex
	completed := 0
	results := pool.WarmParallel(context.Background(), jobs, func(done, total int, r Result) {
		mu.Lock()
		completed++
		mu.Unlock()
		require.NoError(t, r.Err)
		require.Equal(t, 4, total)
	})
	require.Len(t, results, 4)
	require.Equal(t, 4, completed)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
}

func TestOutdatedSkipsAlreadyWarmJobs(t *testing.T) {
	cache, dir := newTestCache(t)
	jobs := makeSources(t, dir, "a.flac")
	pool := New(cache, 2)

	stale, err := pool.Outdated(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	pool.WarmSerial(context.Background(), jobs, nil)

	stale, err = pool.Outdated(context.Background(), jobs)
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestRegenerateOutdatedOnlyTouchesStaleJobs(t *testing.T) {
	cache, dir := newTestCache(t)
	jobs := makeSources(t, dir, "a.flac", "b.flac")
	pool := New(cache, 2)

	// Warm only the first job up front.
	pool.WarmSerial(context.Background(), jobs[:1], nil)

	results, err := pool.RegenerateOutdated(context.Background(), jobs, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, jobs[1].Path, results[0].Job.Path)
}

// Package cachepool is the Cache Worker Pool (C10): runs a batch of
// transcode-cache-warming jobs either serially or with bounded concurrency,
// and reports progress as each job finishes. Grounded on original_source's
// cache_worker.py — CacheWorker.cache_single_file, cache_mixtape's serial
// loop, cache_mixtape_async's ThreadPoolExecutor(max_workers=4) +
// as_completed, and verify_mixtape_cache/regenerate_outdated_cache — with
// goroutines and a semaphore channel standing in for the thread pool.
package cachepool

import (
	"context"
	"sync"

	"github.com/nilsaxelsson/musiclib/internal/transcode"
)

// Job is one (path, quality) derivative to ensure is cached.
type Job struct {
	Path    string
	Quality transcode.Quality
}

// Result is the outcome of running one Job.
type Result struct {
	Job Job
	Err error
}

// ProgressFunc is called after each job completes. done/total let callers
// compute a fraction; r.Err is non-nil for a failed job, which does not
// stop the rest of the batch.
type ProgressFunc func(done, total int, r Result)

// Pool runs cache-warming jobs against a transcode.Cache.
type Pool struct {
	cache   *transcode.Cache
	workers int
}

// New returns a Pool. workers bounds parallel mode's concurrency; zero or
// negative defaults to 4, matching cache_worker.py's default.
func New(cache *transcode.Cache, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{cache: cache, workers: workers}
}

// WarmSerial runs jobs one at a time in order, mirroring cache_mixtape.
func (p *Pool) WarmSerial(ctx context.Context, jobs []Job, onProgress ProgressFunc) []Result {
	results := make([]Result, 0, len(jobs))
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		_, _, err := p.cache.Resolve(ctx, j.Path, j.Quality)
		r := Result{Job: j, Err: err}
		results = append(results, r)
		if onProgress != nil {
			onProgress(len(results), len(jobs), r)
		}
	}
	return results
}

// WarmParallel runs up to p.workers jobs concurrently, mirroring
// cache_mixtape_async. onProgress fires in completion order, which need not
// match jobs' input order — the same as as_completed's iteration order.
func (p *Pool) WarmParallel(ctx context.Context, jobs []Job, onProgress ProgressFunc) []Result {
	results := make([]Result, len(jobs))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for i, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		i, j := i, j
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			_, _, err := p.cache.Resolve(ctx, j.Path, j.Quality)
			r := Result{Job: j, Err: err}
			results[i] = r

			mu.Lock()
			done++
			d := done
			mu.Unlock()
			if onProgress != nil {
				onProgress(d, len(jobs), r)
			}
		}()
	}
	wg.Wait()
	return results
}

// Outdated returns the subset of jobs whose cached derivative is missing or
// stale, without transcoding them — mirroring verify_mixtape_cache.
func (p *Pool) Outdated(ctx context.Context, jobs []Job) ([]Job, error) {
	var stale []Job
	for _, j := range jobs {
		fresh, err := p.cache.IsCached(ctx, j.Path, j.Quality)
		if err != nil {
			return nil, err
		}
		if !fresh {
			stale = append(stale, j)
		}
	}
	return stale, nil
}

// RegenerateOutdated finds and re-warms every stale job, mirroring
// regenerate_outdated_cache.
func (p *Pool) RegenerateOutdated(ctx context.Context, jobs []Job, onProgress ProgressFunc) ([]Result, error) {
	stale, err := p.Outdated(ctx, jobs)
	if err != nil {
		return nil, err
	}
	return p.WarmParallel(ctx, stale, onProgress), nil
}

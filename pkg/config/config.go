// Package config builds the explicit configuration record every musiclib
// component is constructed with: a value passed explicitly into every
// constructor rather than read from inside nested packages, so nothing in
// the core depends on process-wide globals.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the full set of tunables for a musiclib instance.
type Config struct {
	// LibraryRoot is the directory whose subtree constitutes the collection.
	LibraryRoot string
	// DataRoot holds the Index Store DB file, indexing status snapshot,
	// mixtape documents, and the transcode cache.
	DataRoot string

	DBPath     string
	MixtapeDir string
	CoverDir   string
	CacheDir   string
	StatusPath string

	DebounceWindow       time.Duration
	FreshnessSampleSize  int
	RebuildProgressEvery int

	CacheWorkers     int
	ListenerTimeout  time.Duration
	TranscodeTimeout time.Duration
	CacheMaxAgeDays  int
	CoverMaxWidth    int

	SearchDefaultLimit int
}

// Load builds a Config from environment variables, falling back to defaults.
// Every field has a standalone-usable default so the daemon runs unconfigured
// out of the box.
func Load() Config {
	root := Env("MUSICLIB_DATA_ROOT", "./data")
	return Config{
		LibraryRoot: Env("MUSICLIB_LIBRARY_ROOT", "./music"),
		DataRoot:    root,

		DBPath:     Env("MUSICLIB_DB_PATH", filepath.Join(root, "index.db")),
		MixtapeDir: Env("MUSICLIB_MIXTAPE_DIR", filepath.Join(root, "mixtapes")),
		CoverDir:   Env("MUSICLIB_COVER_DIR", filepath.Join(root, "mixtapes", "covers")),
		CacheDir:   Env("MUSICLIB_CACHE_DIR", filepath.Join(root, "cache")),
		StatusPath: Env("MUSICLIB_STATUS_PATH", filepath.Join(root, "indexing_status.json")),

		DebounceWindow:       envDuration("MUSICLIB_DEBOUNCE_WINDOW", 2*time.Second),
		FreshnessSampleSize:  envInt("MUSICLIB_FRESHNESS_SAMPLE_SIZE", 200),
		RebuildProgressEvery: envInt("MUSICLIB_REBUILD_PROGRESS_EVERY", 150),

		CacheWorkers:     envInt("MUSICLIB_CACHE_WORKERS", 4),
		ListenerTimeout:  envDuration("MUSICLIB_LISTENER_TIMEOUT", 300*time.Second),
		TranscodeTimeout: envDuration("MUSICLIB_TRANSCODE_TIMEOUT", 300*time.Second),
		CacheMaxAgeDays:  envInt("MUSICLIB_CACHE_MAX_AGE_DAYS", 30),
		CoverMaxWidth:    envInt("MUSICLIB_COVER_MAX_WIDTH", 1200),

		SearchDefaultLimit: envInt("MUSICLIB_SEARCH_LIMIT", 25),
	}
}

// Env returns the value of the environment variable key, or def if unset.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Package store is the Index Store (C2): a durable, row-oriented store of
// track records keyed by absolute path, with case-insensitive secondary
// access over artist/album/title. Store{conn}, New/Close/Ping,
// Params-struct-per-operation, scanX(rows) helpers, and an embedded
// idempotent migration are built on modernc.org/sqlite, which gives a single
// on-disk database file with a journaling mode that permits concurrent
// readers during a writer — a contract a TCP-backed database cannot serve
// for a local, single-machine collection.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/nilsaxelsson/musiclib/pkg/muserr"
)

// Store holds the database handle. Its connection pool is capped at one
// connection (see Open), so reads and writes made through one Store take
// turns on that connection rather than running concurrently. Writes are
// additionally serialized here with writeMu as a last line of defense: the
// Supervisor is the only intended writer, but SQLite itself only ever allows
// one writer transaction at a time regardless, so the mutex just turns
// contention into an ordered queue instead of retried SQLITE_BUSY errors.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if needed) the SQLite database at path, enables WAL
// journaling so readers on other connections (such as another process) are
// not blocked by a writer, and applies the schema migration. Within the
// returned Store, reads wait for the single pooled connection.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	// A single connection keeps the writer serialization mutex meaningful —
	// database/sql's pool would otherwise hand out a second connection for a
	// concurrent write and SQLITE_BUSY would surface instead of blocking.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout=30000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close shuts down the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertTrack inserts or replaces the row for p.Path.
func (s *Store) UpsertTrack(ctx context.Context, p UpsertTrackParams) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO tracks (path, filename, artist, album, title, albumartist, genre, year, duration, mtime)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	filename = excluded.filename,
	artist = excluded.artist,
	album = excluded.album,
	title = excluded.title,
	albumartist = excluded.albumartist,
	genre = excluded.genre,
	year = excluded.year,
	duration = excluded.duration,
	mtime = excluded.mtime
`, p.Path, p.Filename, p.Artist, p.Album, p.Title, p.AlbumArtist, p.Genre, p.Year, p.Duration, p.Mtime)
	if err != nil {
		return muserr.New(muserr.KindFatal, "UpsertTrack", err)
	}
	return nil
}

// DeleteTrack removes the row for path. Deleting an absent path is not an error.
func (s *Store) DeleteTrack(ctx context.Context, path string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE path = ?`, path)
	if err != nil {
		return muserr.New(muserr.KindFatal, "DeleteTrack", err)
	}
	return nil
}

// Clear removes every row — used by rebuild() before a full re-scan.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM tracks`)
	if err != nil {
		return muserr.New(muserr.KindFatal, "Clear", err)
	}
	return nil
}

// GetByPath returns the row for path, or a NotFound error if absent.
func (s *Store) GetByPath(ctx context.Context, path string) (Track, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT path, filename, artist, album, title, albumartist, genre, year, duration, mtime
FROM tracks WHERE path = ?`, path)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Track{}, muserr.New(muserr.KindNotFound, "GetByPath", err)
	}
	if err != nil {
		return Track{}, muserr.New(muserr.KindFatal, "GetByPath", err)
	}
	return t, nil
}

// AllPaths enumerates every indexed path, used by resync() to diff against
// the Filesystem Scanner's delta set.
func (s *Store) AllPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM tracks`)
	if err != nil {
		return nil, muserr.New(muserr.KindFatal, "AllPaths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, muserr.New(muserr.KindFatal, "AllPaths", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Count returns the number of indexed tracks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&n)
	if err != nil {
		return 0, muserr.New(muserr.KindFatal, "Count", err)
	}
	return n, nil
}

// SampleRandom returns up to n rows chosen at random, for the Supervisor's
// freshness check against the filesystem.
func (s *Store) SampleRandom(ctx context.Context, n int) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT path, filename, artist, album, title, albumartist, genre, year, duration, mtime
FROM tracks ORDER BY RANDOM() LIMIT ?`, n)
	if err != nil {
		return nil, muserr.New(muserr.KindFatal, "SampleRandom", err)
	}
	defer rows.Close()
	return scanTracks(rows)
}

// Query runs a caller-built predicate/order (see QueryParams) and returns
// matching rows. Used by the Search Engine to implement its bucketed,
// mutual-exclusion query semantics without leaking raw SQL construction into
// this package. Where/OrderBy are built by the caller from a fixed
// whitelist of column names, never from raw user text — values flow in only
// through Args as bound parameters.
func (s *Store) Query(ctx context.Context, p QueryParams) ([]Track, error) {
	sqlStr := `SELECT path, filename, artist, album, title, albumartist, genre, year, duration, mtime FROM tracks`
	if p.Where != "" {
		sqlStr += ` WHERE ` + p.Where
	}
	if p.OrderBy != "" {
		sqlStr += ` ORDER BY ` + p.OrderBy
	}
	args := p.Args
	if p.Limit > 0 {
		sqlStr += ` LIMIT ?`
		args = append(append([]any{}, args...), p.Limit)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, muserr.New(muserr.KindFatal, "Query", err)
	}
	defer rows.Close()
	return scanTracks(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (Track, error) {
	var t Track
	var year sql.NullInt64
	if err := row.Scan(&t.Path, &t.Filename, &t.Artist, &t.Album, &t.Title,
		&t.AlbumArtist, &t.Genre, &year, &t.Duration, &t.Mtime); err != nil {
		return Track{}, err
	}
	if year.Valid {
		y := int(year.Int64)
		t.Year = &y
	}
	return t, nil
}

func scanTracks(rows *sql.Rows) ([]Track, error) {
	var out []Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

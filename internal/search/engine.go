// Engine executes grouped, prefix-biased, field-qualified search (C7)
// against the Index Store: an artists-then-albums-then-tracks exclusion
// chain, where a result already shown in an earlier bucket is excluded from
// later ones, plus a track:/song: field qualifier that narrows the whole
// query to the Tracks bucket only. The WHERE clause AND-combines however
// many terms apply to a field, and the prefix/alpha ordering happens in Go
// rather than as a single SQL ORDER BY expression, since "all N terms match
// as a prefix" isn't expressible that way once N is unbounded.
package search

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nilsaxelsson/musiclib/pkg/store"
)

// Reason is one entry in a result's "why it matched" list.
type Reason struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TrackHit is a single track within a bucket, with path reported relative to
// the library root and duration rendered as M:SS.
type TrackHit struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	Title       string `json:"title"`
	Duration    string `json:"duration"`
	Highlighted string `json:"highlighted"`
}

// AlbumHit is an (artist, album) pair with its tracks, used both inside an
// ArtistHit and as a standalone entry in the Albums bucket.
type AlbumHit struct {
	Artist  string     `json:"artist"`
	Album   string     `json:"album"`
	Tracks  []TrackHit `json:"tracks"`
	Reasons []Reason   `json:"reasons"`
}

// ArtistHit is an artist with its albums expanded.
type ArtistHit struct {
	Artist  string     `json:"artist"`
	Albums  []AlbumHit `json:"albums"`
	Reasons []Reason   `json:"reasons"`
}

// Results is the grouped output of one Search call.
type Results struct {
	Artists []ArtistHit `json:"artists"`
	Albums  []AlbumHit  `json:"albums"`
	Tracks  []TrackHit  `json:"tracks"`
}

// Engine runs grouped searches against an Index Store.
type Engine struct {
	store        *store.Store
	libraryRoot  string
	defaultLimit int
}

// New returns an Engine. libraryRoot is used to relativize result paths so
// callers never see absolute filesystem locations.
func New(s *store.Store, libraryRoot string, defaultLimit int) *Engine {
	return &Engine{store: s, libraryRoot: libraryRoot, defaultLimit: defaultLimit}
}

// Search parses raw and returns the grouped, highlighted result. A query
// shorter than 2 characters (after trimming) returns empty buckets, not an
// error.
func (e *Engine) Search(ctx context.Context, raw string, limit int) (Results, error) {
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if len(strings.TrimSpace(raw)) < 2 {
		return Results{}, nil
	}

	terms := ParseQuery(raw)
	strict := HasField(terms, FieldTrack)

	artistTerms := fieldTerms(terms, FieldNone, FieldArtist)
	albumTerms := fieldTerms(terms, FieldNone, FieldAlbum, FieldReleaseDir)
	trackTerms := fieldTerms(terms, FieldNone, FieldTrack)
	// artist:/album:/release_dir: qualifiers narrow the Tracks bucket even
	// when track:/song: has cleared the Artists/Albums buckets entirely —
	// spec §8 scenario 4: artist:"Nick Cave" song:"Weeping" must still
	// restrict the surviving tracks to that artist.
	artistQualifiers := fieldTerms(terms, FieldArtist)
	albumQualifiers := fieldTerms(terms, FieldAlbum, FieldReleaseDir)
	allValues := termValues(terms)

	var artists []ArtistHit
	if !strict && len(artistTerms) > 0 {
		var err error
		artists, err = e.searchArtists(ctx, artistTerms, allValues, limit)
		if err != nil {
			return Results{}, err
		}
	}

	exclude := artistNames(artists)

	var albums []AlbumHit
	if !strict && len(albumTerms) > 0 {
		var err error
		albums, err = e.searchAlbums(ctx, albumTerms, allValues, exclude, limit)
		if err != nil {
			return Results{}, err
		}
		exclude = append(exclude, artistNamesFromAlbums(albums)...)
	}

	var tracks []TrackHit
	if len(trackTerms) > 0 {
		var err error
		tracks, err = e.searchTracks(ctx, trackTerms, artistQualifiers, albumQualifiers, allValues, exclude, limit)
		if err != nil {
			return Results{}, err
		}
	}

	return Results{Artists: artists, Albums: albums, Tracks: tracks}, nil
}

func (e *Engine) searchArtists(ctx context.Context, terms []Term, allValues []string, limit int) ([]ArtistHit, error) {
	where, args := likeClause("artist", terms)
	rows, err := e.store.Query(ctx, store.QueryParams{Where: where, Args: args})
	if err != nil {
		return nil, err
	}

	names := distinctOrdered(rows, func(t store.Track) string { return t.Artist })
	ordered := orderByPrefixThenAlpha(names, terms, limit)

	hits := make([]ArtistHit, 0, len(ordered))
	for _, name := range ordered {
		albumNames, err := e.artistAlbumNames(ctx, name)
		if err != nil {
			return nil, err
		}
		var albumHits []AlbumHit
		for _, album := range albumNames {
			tracks, err := e.albumTracks(ctx, name, album)
			if err != nil {
				return nil, err
			}
			albumHits = append(albumHits, AlbumHit{Artist: name, Album: album, Tracks: tracks})
		}
		hits = append(hits, ArtistHit{
			Artist:  name,
			Albums:  albumHits,
			Reasons: artistReasons(name, albumHits, allValues),
		})
	}
	return hits, nil
}

func (e *Engine) artistAlbumNames(ctx context.Context, artist string) ([]string, error) {
	rows, err := e.store.Query(ctx, store.QueryParams{
		Where:   "artist = ? COLLATE NOCASE",
		Args:    []any{artist},
		OrderBy: "album COLLATE NOCASE",
	})
	if err != nil {
		return nil, err
	}
	return distinctOrdered(rows, func(t store.Track) string { return t.Album }), nil
}

func (e *Engine) albumTracks(ctx context.Context, artist, album string) ([]TrackHit, error) {
	rows, err := e.store.Query(ctx, store.QueryParams{
		Where:   "artist = ? COLLATE NOCASE AND album = ? COLLATE NOCASE",
		Args:    []any{artist, album},
		OrderBy: "title COLLATE NOCASE",
	})
	if err != nil {
		return nil, err
	}
	hits := make([]TrackHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, e.trackHit(r, nil))
	}
	return hits, nil
}

func (e *Engine) searchAlbums(ctx context.Context, terms []Term, allValues []string, exclude []string, limit int) ([]AlbumHit, error) {
	where, args := likeClause("album", terms)
	where, args = appendExclude(where, args, exclude)
	rows, err := e.store.Query(ctx, store.QueryParams{Where: where, Args: args})
	if err != nil {
		return nil, err
	}

	type pair struct{ artist, album string }
	seen := make(map[pair]bool)
	var pairs []pair
	for _, r := range rows {
		p := pair{r.Artist, r.Album}
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = p.album
	}
	ordered := orderByPrefixThenAlphaIdx(names, terms, limit)

	hits := make([]AlbumHit, 0, len(ordered))
	for _, idx := range ordered {
		p := pairs[idx]
		tracks, err := e.albumTracks(ctx, p.artist, p.album)
		if err != nil {
			return nil, err
		}
		hits = append(hits, AlbumHit{
			Artist:  p.artist,
			Album:   p.album,
			Tracks:  tracks,
			Reasons: albumReasons(p.artist, p.album, tracks, allValues),
		})
	}
	return hits, nil
}

func (e *Engine) searchTracks(ctx context.Context, terms, artistQualifiers, albumQualifiers []Term, allValues []string, exclude []string, limit int) ([]TrackHit, error) {
	where, args := likeClause("title", terms)
	if len(artistQualifiers) > 0 {
		qWhere, qArgs := likeClause("artist", artistQualifiers)
		where, args = andClause(where, args, qWhere, qArgs)
	}
	if len(albumQualifiers) > 0 {
		qWhere, qArgs := likeClause("album", albumQualifiers)
		where, args = andClause(where, args, qWhere, qArgs)
	}
	where, args = appendExclude(where, args, exclude)
	rows, err := e.store.Query(ctx, store.QueryParams{Where: where, Args: args})
	if err != nil {
		return nil, err
	}

	order := orderRowsByPrefixThenAlpha(rows, terms, func(t store.Track) string { return t.Title }, limit)
	hits := make([]TrackHit, 0, len(order))
	for _, r := range order {
		hits = append(hits, e.trackHit(r, allValues))
	}
	return hits, nil
}

func (e *Engine) trackHit(t store.Track, highlightTerms []string) TrackHit {
	rel := t.Path
	if r, err := filepath.Rel(e.libraryRoot, t.Path); err == nil {
		rel = r
	}
	h := TrackHit{
		Path:     rel,
		Filename: t.Filename,
		Artist:   t.Artist,
		Album:    t.Album,
		Title:    t.Title,
		Duration: formatDuration(t.Duration),
	}
	if highlightTerms != nil {
		h.Highlighted = Highlight(t.Title, highlightTerms)
	}
	return h
}

func artistReasons(artist string, albums []AlbumHit, terms []string) []Reason {
	reasons := []Reason{{Type: "artist", Text: artist}}
	trackCount := 0
	for _, a := range albums {
		if containsAnyFold(a.Album, terms) {
			reasons = append(reasons, Reason{Type: "album", Text: a.Album})
		}
		for _, tr := range a.Tracks {
			if containsAnyFold(tr.Title, terms) {
				trackCount++
			}
		}
	}
	if trackCount > 0 {
		reasons = append(reasons, Reason{Type: "track", Text: strconv.Itoa(trackCount) + " track(s)"})
	}
	return reasons
}

func albumReasons(artist, album string, tracks []TrackHit, terms []string) []Reason {
	var reasons []Reason
	if containsAnyFold(artist, terms) {
		reasons = append(reasons, Reason{Type: "artist", Text: artist})
	}
	if containsAnyFold(album, terms) {
		reasons = append(reasons, Reason{Type: "album", Text: album})
	}
	matched := 0
	for _, tr := range tracks {
		if containsAnyFold(tr.Title, terms) {
			matched++
		}
	}
	if matched > 0 {
		reasons = append(reasons, Reason{Type: "track", Text: strconv.Itoa(matched) + " track(s)"})
	}
	return reasons
}

func containsAnyFold(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "?:??"
	}
	total := int(seconds)
	m := total / 60
	s := total % 60
	return strconv.Itoa(m) + ":" + pad2(s)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func fieldTerms(terms []Term, fields ...Field) []Term {
	set := make(map[Field]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	var out []Term
	for _, t := range terms {
		if set[t.Field] {
			out = append(out, t)
		}
	}
	return out
}

func termValues(terms []Term) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		out = append(out, t.Value)
	}
	return out
}

func artistNames(hits []ArtistHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Artist
	}
	return out
}

func artistNamesFromAlbums(hits []AlbumHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Artist
	}
	return out
}

func distinctOrdered(rows []store.Track, key func(store.Track) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		v := key(r)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// orderByPrefixThenAlpha sorts names by "matches every term as a prefix"
// (true first), then case-insensitive alphabetically, stable so ties keep
// the Store's natural (insertion-ish) order.
func orderByPrefixThenAlpha(names []string, terms []Term, limit int) []string {
	idx := orderByPrefixThenAlphaIdx(names, terms, limit)
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = names[j]
	}
	return out
}

func orderByPrefixThenAlphaIdx(names []string, terms []Term, limit int) []int {
	idx := make([]int, len(names))
	for i := range names {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		pa, pb := allPrefix(names[idx[a]], terms), allPrefix(names[idx[b]], terms)
		if pa != pb {
			return pa
		}
		return strings.ToLower(names[idx[a]]) < strings.ToLower(names[idx[b]])
	})
	if limit > 0 && len(idx) > limit {
		idx = idx[:limit]
	}
	return idx
}

func orderRowsByPrefixThenAlpha(rows []store.Track, terms []Term, key func(store.Track) string, limit int) []store.Track {
	idx := make([]int, len(rows))
	for i := range rows {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		pa, pb := allPrefix(key(rows[idx[a]]), terms), allPrefix(key(rows[idx[b]]), terms)
		if pa != pb {
			return pa
		}
		return strings.ToLower(key(rows[idx[a]])) < strings.ToLower(key(rows[idx[b]]))
	})
	if limit > 0 && len(idx) > limit {
		idx = idx[:limit]
	}
	out := make([]store.Track, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

// allPrefix reports whether value is a case-insensitive prefix match for
// every term (exact terms require full equality, which implies prefix).
func allPrefix(value string, terms []Term) bool {
	lower := strings.ToLower(value)
	for _, t := range terms {
		tv := strings.ToLower(t.Value)
		if t.Exact {
			if lower != tv {
				return false
			}
			continue
		}
		if !strings.HasPrefix(lower, tv) {
			return false
		}
	}
	return true
}

// likeClause AND-combines one condition per term against column: an exact
// (quoted) term becomes equality, an unquoted term becomes a literal
// substring match. % and _ in the value are escaped so they are matched
// literally rather than as SQL LIKE wildcards — spec §4.7 describes
// substring matching, not pattern matching.
func likeClause(column string, terms []Term) (string, []any) {
	if len(terms) == 0 {
		return "", nil
	}
	var conds []string
	var args []any
	for _, t := range terms {
		if t.Exact {
			conds = append(conds, column+" = ? COLLATE NOCASE")
			args = append(args, t.Value)
			continue
		}
		conds = append(conds, column+" LIKE ? ESCAPE '\\' COLLATE NOCASE")
		args = append(args, "%"+escapeLike(t.Value)+"%")
	}
	return strings.Join(conds, " AND "), args
}

func escapeLike(v string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(v)
}

// andClause AND-combines an additional condition (e.g. an artist: or
// album: qualifier's likeClause) onto an existing WHERE fragment.
func andClause(where string, args []any, cond string, condArgs []any) (string, []any) {
	if cond == "" {
		return where, args
	}
	args = append(args, condArgs...)
	if where == "" {
		return cond, args
	}
	return where + " AND " + cond, args
}

func appendExclude(where string, args []any, exclude []string) (string, []any) {
	if len(exclude) == 0 {
		return where, args
	}
	placeholders := make([]string, len(exclude))
	for i, a := range exclude {
		placeholders[i] = "?"
		args = append(args, strings.ToLower(a))
	}
	clause := "lower(artist) NOT IN (" + strings.Join(placeholders, ",") + ")"
	if where == "" {
		return clause, args
	}
	return where + " AND " + clause, args
}

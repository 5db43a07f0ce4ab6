package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nilsaxelsson/musiclib/pkg/store"
)

func seedStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	root := t.TempDir()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tracks := []store.UpsertTrackParams{
		{Path: filepath.Join(root, "NickCave/Skeleton/01.flac"), Filename: "01.flac",
			Artist: "Nick Cave", Album: "Skeleton Tree", Title: "Jesus Alone", AlbumArtist: "Nick Cave", Genre: "Rock", Duration: 365, Mtime: 1},
		{Path: filepath.Join(root, "NickCave/Skeleton/02.flac"), Filename: "02.flac",
			Artist: "Nick Cave", Album: "Skeleton Tree", Title: "Girl in Amber", AlbumArtist: "Nick Cave", Genre: "Rock", Duration: 310, Mtime: 1},
		{Path: filepath.Join(root, "Nico/Chelsea/01.flac"), Filename: "01.flac",
			Artist: "Nico", Album: "Chelsea Girl", Title: "These Days", AlbumArtist: "Nico", Genre: "Folk", Duration: 198, Mtime: 1},
		{Path: filepath.Join(root, "Someone/LoveSongs/01.flac"), Filename: "01.flac",
			Artist: "Someone Else", Album: "Love Songs", Title: "Love Song", AlbumArtist: "Someone Else", Genre: "Pop", Duration: 0, Mtime: 1},
	}
	for _, tr := range tracks {
		require.NoError(t, s.UpsertTrack(ctx, tr))
	}
	return s, root
}

func TestSearchArtistsBucketPrefixOrdering(t *testing.T) {
	s, root := seedStore(t)
	e := New(s, root, 20)

	res, err := e.Search(context.Background(), "nic", 20)
	require.NoError(t, err)
	require.Len(t, res.Artists, 2)
	// "Nick Cave" and "Nico" both prefix-match "nic"; alphabetical tiebreak.
	require.Equal(t, "Nick Cave", res.Artists[0].Artist)
	require.Equal(t, "Nico", res.Artists[1].Artist)
	require.Len(t, res.Artists[0].Albums, 1)
	require.Len(t, res.Artists[0].Albums[0].Tracks, 2)
}

func TestSearchAlbumsExcludesArtistsBucketMatches(t *testing.T) {
	s, root := seedStore(t)
	e := New(s, root, 20)

	// "nic" matches artists Nick Cave/Nico directly, so their albums must
	// not also appear in the Albums bucket (mutual exclusion, spec §4.7).
	res, err := e.Search(context.Background(), "nic", 20)
	require.NoError(t, err)
	for _, a := range res.Albums {
		require.NotEqual(t, "Nick Cave", a.Artist)
		require.NotEqual(t, "Nico", a.Artist)
	}
}

func TestSearchTrackFieldNarrowsToTracksOnly(t *testing.T) {
	s, root := seedStore(t)
	e := New(s, root, 20)

	res, err := e.Search(context.Background(), `track:"Love Song"`, 20)
	require.NoError(t, err)
	require.Empty(t, res.Artists)
	require.Empty(t, res.Albums)
	require.Len(t, res.Tracks, 1)
	require.Equal(t, "Love Song", res.Tracks[0].Title)
	require.Equal(t, "?:??", res.Tracks[0].Duration, "zero duration renders as unknown")
}

func TestSearchArtistQualifierNarrowsTrackBucketInStrictMode(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tracks := []store.UpsertTrackParams{
		{Path: filepath.Join(root, "NickCave/Skeleton/01.flac"), Filename: "01.flac",
			Artist: "Nick Cave", Album: "Skeleton Tree", Title: "Weeping Song", Duration: 300, Mtime: 1},
		{Path: filepath.Join(root, "OtherArtist/Album/01.flac"), Filename: "01.flac",
			Artist: "Other Artist", Album: "Album", Title: "Weeping Time", Duration: 200, Mtime: 1},
	}
	for _, tr := range tracks {
		require.NoError(t, s.UpsertTrack(ctx, tr))
	}

	e := New(s, root, 20)

	// spec §8 scenario 4: the artist: qualifier must still constrain the
	// Tracks bucket even though song: has cleared Artists/Albums.
	res, err := e.Search(ctx, `artist:"Nick Cave" song:"Weeping"`, 20)
	require.NoError(t, err)
	require.Empty(t, res.Artists)
	require.Empty(t, res.Albums)
	require.Len(t, res.Tracks, 1)
	require.Equal(t, "Weeping Song", res.Tracks[0].Title)
	require.Equal(t, "Nick Cave", res.Tracks[0].Artist)
}

func TestSearchShortQueryReturnsEmpty(t *testing.T) {
	s, root := seedStore(t)
	e := New(s, root, 20)

	res, err := e.Search(context.Background(), "n", 20)
	require.NoError(t, err)
	require.Empty(t, res.Artists)
	require.Empty(t, res.Albums)
	require.Empty(t, res.Tracks)
}

func TestSearchRelativizesPathToLibraryRoot(t *testing.T) {
	s, root := seedStore(t)
	e := New(s, root, 20)

	res, err := e.Search(context.Background(), "nico", 20)
	require.NoError(t, err)
	require.Len(t, res.Artists, 1)
	tracks := res.Artists[0].Albums[0].Tracks
	require.Len(t, tracks, 1)
	require.Equal(t, filepath.Join("Nico", "Chelsea", "01.flac"), tracks[0].Path)
}

func TestHighlightLongestTermFirst(t *testing.T) {
	out := Highlight("Love Song", []string{"Love", "Love Song"})
	require.Equal(t, "«Love Song»", out)
}

func TestHighlightCaseInsensitive(t *testing.T) {
	out := Highlight("Jesus Alone", []string{"alone"})
	require.Equal(t, "Jesus «Alone»", out)
}

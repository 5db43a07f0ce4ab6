package tagreader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestReadFallbacks verifies the path-derived fallback chain used
// for a file with no parseable tags.
func TestReadFallbacks(t *testing.T) {
	dir := t.TempDir()
	artistDir := filepath.Join(dir, "Nick Cave", "Album Title")
	require.NoError(t, os.MkdirAll(artistDir, 0o755))

	path := filepath.Join(artistDir, "01 - Song Stem.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not a real audio file"), 0o644))

	rec := Read(path)
	require.Equal(t, "Nick Cave", rec.Artist)
	require.Equal(t, "Album Title", rec.Album)
	require.Equal(t, "01 - Song Stem", rec.Title)
	require.Nil(t, rec.Year)
}

func TestAlbumIgnoreSetFallsThroughToGrandparent(t *testing.T) {
	dir := t.TempDir()
	artistDir := filepath.Join(dir, "Artist Name", "Music")
	require.NoError(t, os.MkdirAll(artistDir, 0o755))
	path := filepath.Join(artistDir, "Track.mp3")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	rec := Read(path)
	require.Equal(t, "Artist Name", rec.Album)
}

func TestIsSupported(t *testing.T) {
	for _, ext := range []string{".mp3", ".FLAC", ".ogg", ".m4a", ".wav", ".wma"} {
		require.True(t, IsSupported("x"+ext), ext)
	}
	require.False(t, IsSupported("x.txt"))
}

package mixtape

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nilsaxelsson/musiclib/pkg/store"
)

func newTestManager(t *testing.T, idx *store.Store) *Manager {
	t.Helper()
	dir := t.TempDir()
	coverDir := filepath.Join(dir, "covers")
	return New(dir, coverDir, 64, idx, t.TempDir(), nil)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestSanitizeTitleSlugification(t *testing.T) {
	require.Equal(t, "road-trip-2024", sanitizeTitle("  Road Trip_2024! "))
	require.Equal(t, "untitled", sanitizeTitle("***"))
	require.Equal(t, "untitled", sanitizeTitle(""))
}

func TestSaveCreatesNewMixtapeWithUniqueSlug(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	doc1, err := m.Save(ctx, Patch{Title: strPtr("Summer Drive")})
	require.NoError(t, err)
	require.Equal(t, "summer-drive", doc1.Slug)
	require.False(t, doc1.CreatedAt.IsZero())
	require.Equal(t, doc1.CreatedAt, doc1.UpdatedAt)

	doc2, err := m.Save(ctx, Patch{Title: strPtr("Summer Drive")})
	require.NoError(t, err)
	require.Equal(t, "summer-drive-1", doc2.Slug)
}

func TestSaveWithClientIDDelegatesToUpdate(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	created, err := m.Save(ctx, Patch{Title: strPtr("Gift Mix"), ClientID: strPtr("client-123")})
	require.NoError(t, err)

	updated, err := m.Save(ctx, Patch{
		ClientID:        strPtr("client-123"),
		LinerNotes:      strPtr("for you"),
		GiftFlowEnabled: boolPtr(true),
	})
	require.NoError(t, err)
	require.Equal(t, created.Slug, updated.Slug)
	require.Equal(t, "Gift Mix", updated.Title, "update preserves fields not in the patch")
	require.Equal(t, "for you", updated.LinerNotes)
	require.True(t, updated.GiftFlowEnabled)
	require.Equal(t, "client-123", updated.ClientID)
}

func TestUpdateMissingSlugReturnsNotFound(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.Update(context.Background(), "does-not-exist", Patch{Title: strPtr("x")})
	require.Error(t, err)
}

func TestListOrdersByUpdatedAtDescending(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.Save(ctx, Patch{Title: strPtr("Older")})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = m.Save(ctx, Patch{Title: strPtr("Newer")})
	require.NoError(t, err)

	docs, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "Newer", docs[0].Title)
	require.Equal(t, "Older", docs[1].Title)
}

func TestDeleteIsIdempotent(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	doc, err := m.Save(ctx, Patch{Title: strPtr("Throwaway")})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, doc.Slug))
	require.NoError(t, m.Delete(ctx, doc.Slug), "deleting twice is not an error")
}

func TestNormalizeLegacyFieldsMigratesSavedAtAndTrackTitle(t *testing.T) {
	raw := []byte(`{
		"title": "Old Mix",
		"saved_at": "2020-01-01T00:00:00Z",
		"tracks": [{"path": "/a.flac", "title": "Old Song"}]
	}`)
	out, err := normalizeLegacyFields(raw)
	require.NoError(t, err)

	var doc Doc
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Equal(t, "2020-01-01T00:00:00Z", doc.UpdatedAt.Format(time.RFC3339))
	require.Equal(t, doc.UpdatedAt, doc.CreatedAt)
	require.Len(t, doc.Tracks, 1)
	require.Equal(t, "Old Song", doc.Tracks[0].Track)
}

func TestGetReconcilesTrackMetadataFromIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := store.Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	trackPath := filepath.Join(t.TempDir(), "song.flac")
	require.NoError(t, idx.UpsertTrack(ctx, store.UpsertTrackParams{
		Path: trackPath, Filename: "song.flac", Artist: "A", Album: "B", Title: "New Title", Duration: 200, Mtime: 1,
	}))

	m := newTestManager(t, idx)
	doc, err := m.Save(ctx, Patch{
		Title:      strPtr("Mix"),
		TracksSet:  true,
		Tracks: []Track{{Path: trackPath, Filename: "song.flac", Artist: "A", Album: "B", Track: "Old Title", Duration: 150}},
	})
	require.NoError(t, err)

	reconciled, err := m.Get(ctx, doc.Slug)
	require.NoError(t, err)
	require.Equal(t, "New Title", reconciled.Tracks[0].Track)
	require.Equal(t, 200.0, reconciled.Tracks[0].Duration)
}

func TestGetFallsBackToCachedDataWhenTrackMissingFromIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := store.Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	m := newTestManager(t, idx)
	doc, err := m.Save(ctx, Patch{
		Title:     strPtr("Mix"),
		TracksSet: true,
		Tracks:    []Track{{Path: "/gone.flac", Track: "Ghost Track", Duration: 100}},
	})
	require.NoError(t, err)

	reconciled, err := m.Get(ctx, doc.Slug)
	require.NoError(t, err)
	require.Equal(t, "Ghost Track", reconciled.Tracks[0].Track)
}

func TestSaveProcessesDataURLCoverIntoJPEG(t *testing.T) {
	m := newTestManager(t, nil)
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(tinyPNG(t))

	doc, err := m.Save(context.Background(), Patch{Title: strPtr("Cover Test"), Cover: &dataURL})
	require.NoError(t, err)
	require.Equal(t, filepath.Join("covers", doc.Slug+".jpg"), doc.Cover)

	_, err = os.Stat(filepath.Join(m.coverDir, doc.Slug+".jpg"))
	require.NoError(t, err)
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

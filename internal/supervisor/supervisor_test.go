package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nilsaxelsson/musiclib/internal/scanner"
	"github.com/nilsaxelsson/musiclib/internal/status"
	"github.com/nilsaxelsson/musiclib/pkg/store"
)

func newTestLibrary(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	artistDir := filepath.Join(root, "Artist", "Album")
	require.NoError(t, os.MkdirAll(artistDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(artistDir, "track.mp3"), []byte("fake audio"), 0o644))
	return root
}

func newTestSupervisor(t *testing.T, root string) (*Supervisor, *store.Store) {
	t.Helper()
	ctx := context.Background()
	idx, err := store.Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	sc, err := scanner.New(root)
	require.NoError(t, err)

	pub := status.New(filepath.Join(t.TempDir(), "status.json"))
	sup := New(idx, sc, nil, pub, 200, 1, nil)
	return sup, idx
}

func TestRebuildIndexesEveryFile(t *testing.T) {
	root := newTestLibrary(t)
	sup, idx := newTestSupervisor(t, root)
	ctx := context.Background()

	require.NoError(t, sup.Rebuild(ctx))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestInitializeRebuildsWhenStoreEmpty(t *testing.T) {
	root := newTestLibrary(t)
	sup, idx := newTestSupervisor(t, root)
	ctx := context.Background()

	require.NoError(t, sup.Initialize(ctx))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestResyncAddsNewAndRemovesDeletedFiles(t *testing.T) {
	root := newTestLibrary(t)
	sup, idx := newTestSupervisor(t, root)
	ctx := context.Background()
	require.NoError(t, sup.Rebuild(ctx))

	// Add a new file and remove the original.
	newDir := filepath.Join(root, "Artist", "Album2")
	require.NoError(t, os.MkdirAll(newDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(newDir, "new.mp3"), []byte("x"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(root, "Artist", "Album", "track.mp3")))

	require.NoError(t, sup.Resync(ctx))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	paths, err := idx.AllPaths(ctx)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Contains(t, paths[0], "new.mp3")
}

func TestIsSyncedWithFilesystemDetectsMtimeDrift(t *testing.T) {
	root := newTestLibrary(t)
	sup, _ := newTestSupervisor(t, root)
	ctx := context.Background()
	require.NoError(t, sup.Rebuild(ctx))

	synced, err := sup.isSyncedWithFilesystem(ctx)
	require.NoError(t, err)
	require.True(t, synced)

	trackPath := filepath.Join(root, "Artist", "Album", "track.mp3")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(trackPath, future, future))

	synced, err = sup.isSyncedWithFilesystem(ctx)
	require.NoError(t, err)
	require.False(t, synced)
}

package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishClampsProgressAndPreservesStartedAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexing_status.json")
	p := New(path)

	require.NoError(t, p.Publish(PhaseRebuilding, 10, 0))
	first := readSnapshot(t, path)
	require.Equal(t, 0.0, first.Progress)

	require.NoError(t, p.Publish(PhaseRebuilding, 10, 20)) // over total -> clamp to 1
	second := readSnapshot(t, path)
	require.Equal(t, 1.0, second.Progress)
	require.Equal(t, first.StartedAt, second.StartedAt, "started_at preserved within the same running phase")
}

func TestPublishResetsStartedAtOnNewPhase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexing_status.json")
	p := New(path)

	require.NoError(t, p.Publish(PhaseRebuilding, 10, 10))
	first := readSnapshot(t, path)
	require.NoError(t, p.Clear())
	require.NoError(t, p.Publish(PhaseResyncing, 5, 0))

	snap := readSnapshot(t, path)
	require.Equal(t, PhaseResyncing, snap.Status)
	require.True(t, snap.StartedAt.After(first.StartedAt), "started_at reset on entering a new running phase")
}

func TestClearRemovesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexing_status.json")
	p := New(path)
	require.NoError(t, p.Publish(PhaseRebuilding, 1, 1))
	require.NoError(t, p.Clear())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestClearOnMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexing_status.json")
	p := New(path)
	require.NoError(t, p.Clear())
}

func readSnapshot(t *testing.T, path string) Snapshot {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var s Snapshot
	require.NoError(t, json.Unmarshal(b, &s))
	return s
}

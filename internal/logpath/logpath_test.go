package logpath

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogPathLayout(t *testing.T) {
	d := New(t.TempDir())
	at := time.Date(2025, time.August, 27, 10, 15, 42, 0, time.UTC)
	path, err := d.NewLogPath("web", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.Root, "web", "2025", "08", "web_250827_101542.log"), path)
	assert.DirExists(t, filepath.Dir(path))
}

func TestNewLogPathCollisionSuffix(t *testing.T) {
	d := New(t.TempDir())
	at := time.Date(2025, time.August, 27, 10, 15, 42, 0, time.UTC)
	first, err := d.NewLogPath("web", at)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o644))

	second, err := d.NewLogPath("web", at)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Contains(t, second, "web_250827_101542_1.log")
}

func TestLatestLogPathPrefersRecorded(t *testing.T) {
	d := New(t.TempDir())
	at := time.Now()
	recorded, err := d.NewLogPath("web", at)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(recorded, []byte("x"), 0o644))
	assert.Equal(t, recorded, d.LatestLogPath("web", recorded))
}

func TestLatestLogPathFallsBackToNewestFile(t *testing.T) {
	d := New(t.TempDir())
	older, err := d.NewLogPath("web", time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(older, []byte("old"), 0o644))
	newer, err := d.NewLogPath("web", time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(newer, []byte("new"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, old, old))

	// Recorded path no longer exists; the mtime scan decides.
	assert.Equal(t, newer, d.LatestLogPath("web", filepath.Join(d.Root, "gone.log")))
}

func TestLatestLogPathNone(t *testing.T) {
	d := New(t.TempDir())
	assert.Empty(t, d.LatestLogPath("nothing", ""))
}

func TestMigrateLegacyMovesFlatFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stale.log"), []byte("x"), 0o644))
	d := New(root)

	_, err := d.NewLogPath("web", time.Now())
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(root, "stale.log"))
	assert.FileExists(t, filepath.Join(root, "old", "stale.log"))
	assert.FileExists(t, filepath.Join(root, ".migrated"))

	// Second run is a no-op: nothing new is archived.
	require.NoError(t, os.WriteFile(filepath.Join(root, "later.log"), []byte("x"), 0o644))
	_, err = d.NewLogPath("web", time.Now())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "later.log"))
}

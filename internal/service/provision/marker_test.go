package provision

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMarker_AcquireRelease writes our PID and removes the file on release.
func TestMarker_AcquireRelease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	marker, err := AcquireMarker(context.Background(), dir)
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(dir, MarkerFilename))
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(contents))

	require.NoError(t, marker.Release())
	require.NoFileExists(t, filepath.Join(dir, MarkerFilename))
	require.NoError(t, marker.Release())
}

// TestMarker_LiveOwner refuses to start while the owning process exists.
func TestMarker_LiveOwner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	parent := strconv.Itoa(os.Getppid())
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFilename), []byte(parent), 0o600))

	_, err := AcquireMarker(context.Background(), dir)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

// TestMarker_StaleOwner replaces a marker whose process is gone.
func TestMarker_StaleOwner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFilename), []byte("1073741823"), 0o600))

	marker, err := AcquireMarker(context.Background(), dir)
	require.NoError(t, err)

	defer func() { require.NoError(t, marker.Release()) }()

	contents, err := os.ReadFile(filepath.Join(dir, MarkerFilename))
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(contents))
}

// TestMarker_GarbageIsStale treats unreadable content as a leftover.
func TestMarker_GarbageIsStale(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFilename), []byte("not a pid"), 0o600))

	marker, err := AcquireMarker(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, marker.Release())
}

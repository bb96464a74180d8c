package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/oab-process-sync/internal/storage/local"
)

func newStore(t *testing.T) (*local.BlobStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	return store, dir
}

func TestNewBaseDirectory(t *testing.T) {
	t.Parallel()

	t.Run("created when missing", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "archive", "snapshots")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("blank rejected", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{BaseDir: "  "})
		assert.ErrorContains(t, err, "required")
	})

	t.Run("file rejected", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(file, nil, 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.ErrorContains(t, err, "not a directory")
	})

	t.Run("read-only rejected", func(t *testing.T) {
		t.Parallel()
		if os.Geteuid() == 0 {
			t.Skip("permission bits do not apply to root")
		}
		dir := t.TempDir()
		// #nosec G302 -- test directory made read-only on purpose.
		require.NoError(t, os.Chmod(dir, 0o500))
		// #nosec G302 -- restored so TempDir cleanup succeeds.
		t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

		_, err := local.New(local.Config{BaseDir: dir})
		assert.ErrorContains(t, err, "not writable")
	})
}

func TestPutSnapshot(t *testing.T) {
	t.Parallel()

	store, dir := newStore(t)
	ctx := context.Background()
	path := "captures/tenant-1/sync-1/5f2b.json"
	body := `{"numeroProcesso":"8000123-45.2024.8.05.0001"}`

	uri, err := store.PutObject(ctx, path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, path), uri)

	// #nosec G304 -- reads back from the test's temp directory.
	got, err := os.ReadFile(filepath.Join(dir, path))
	require.NoError(t, err)
	assert.JSONEq(t, body, string(got))

	leftovers, err := filepath.Glob(filepath.Join(dir, "captures/tenant-1/sync-1/.snapshot-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPutSnapshotKeepsExistingContent(t *testing.T) {
	t.Parallel()

	store, dir := newStore(t)
	ctx := context.Background()
	path := "tenant-1/sync-1/abc.json"

	first, err := store.PutObject(ctx, path, "application/json", strings.NewReader("first"))
	require.NoError(t, err)
	second, err := store.PutObject(ctx, path, "application/json", strings.NewReader("second"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// #nosec G304 -- reads back from the test's temp directory.
	got, err := os.ReadFile(filepath.Join(dir, path))
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestPutSnapshotRejectsBadPaths(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	for _, path := range []string{"", "   ", "../escape.json", "tenant/../../escape.json"} {
		_, err := store.PutObject(context.Background(), path, "application/json", strings.NewReader("x"))
		assert.Error(t, err, "path %q", path)
	}
}

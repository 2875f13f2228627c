// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
	"github.com/JakeFAU/linkgraph-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "runs", "nested")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutAndGetObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("ValidPut", func(t *testing.T) {
		path := "run-1/nodes.json"
		data := []byte(`[{"url":"https://example.com/"}]`)
		uri, err := store.PutObject(ctx, path, "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, path), uri)

		got, err := store.GetObject(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, "", "text/plain", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.txt", "text/plain", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
		_, err = store.GetObject(ctx, "../../etc/passwd")
		assert.Error(t, err)
	})

	t.Run("MissingObject", func(t *testing.T) {
		_, err := store.GetObject(ctx, "run-1/missing.json")
		assert.ErrorIs(t, err, crawler.ErrObjectNotFound)
	})
}

func TestListObjects(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	for _, p := range []string{"run-1/nodes.json", "run-1/bodies/abc.html", "run-10/nodes.json", "run-2/nodes.json"} {
		_, err := store.PutObject(ctx, p, "", bytes.NewReader([]byte("x")))
		require.NoError(t, err)
	}

	got, err := store.ListObjects(ctx, "run-1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1/bodies/abc.html", "run-1/nodes.json"}, got)

	bodies, err := store.ListObjects(ctx, "run-1/bodies/")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1/bodies/abc.html"}, bodies)

	loose, err := store.ListObjects(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1/bodies/abc.html", "run-1/nodes.json", "run-10/nodes.json"}, loose)

	none, err := store.ListObjects(ctx, "run-9/")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = store.ListObjects(ctx, "../outside/")
	require.Error(t, err)
}

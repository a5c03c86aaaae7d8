package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbassist/internal/config"
)

func TestLocalStore_SaveOpenDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := DocumentKey(7, "abc-123", ".PDF")
	assert.Equal(t, "documents/7/abc-123.pdf", key)

	require.NoError(t, store.Save(ctx, key, strings.NewReader("hello"), 5, "application/pdf"))

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting a missing file is not an error")
	_, err = store.Open(ctx, key)
	assert.Error(t, err)
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "../etc/passwd", "/abs", "a//b", `a\b`} {
		assert.Error(t, store.Save(context.Background(), key, strings.NewReader("x"), 1, ""), key)
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "media")
	store, err := New(context.Background(), config.StorageConfig{Type: "local", LocalDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "local", store.Type())

	_, err = New(context.Background(), config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}

package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("4f1c.mp3"))
	for _, bad := range []string{"", ".", "..", "../x.mp3", "a/b.mp3", `a\b.mp3`, "x..mp3"} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalidName, bad)
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeFor("a.MP3"))
	assert.Equal(t, "audio/wav", ContentTypeFor("a.wav"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("a.unknownext"))
}

func TestLocalStore_SaveOpenRemove(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "music"))
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "song.mp3", strings.NewReader("ID3data"), 7, "audio/mpeg"))
	assert.True(t, store.Exists(ctx, "song.mp3"))

	rc, info, err := store.Open(ctx, "song.mp3")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "ID3data", string(body))
	assert.Equal(t, int64(7), info.Size)
	assert.Equal(t, "audio/mpeg", info.ContentType)

	list, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "song.mp3", list[0].Key)

	require.NoError(t, store.Remove(ctx, "song.mp3"))
	assert.False(t, store.Exists(ctx, "song.mp3"))
	assert.True(t, errors.Is(store.Remove(ctx, "song.mp3"), ErrNotFound))
}

func TestLocalStore_OpenMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Open(context.Background(), "nope.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(filepath.Join(dir, "media"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0644))

	_, _, err = store.Open(context.Background(), "../secret.txt")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.False(t, store.Exists(context.Background(), "../secret.txt"))
}

func TestLocalStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "a.png", strings.NewReader("png"), 3, ""))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.png", entries[0].Name())
}

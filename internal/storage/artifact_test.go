package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestWriteRead_Plain(t *testing.T) {
	store := newTestStore(t)
	content := []byte("hello, artifact")

	res, err := store.Write(context.Background(), bytes.NewReader(content), "notes.txt", false)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), res.Size)
	assert.False(t, res.Compressed)
	assert.True(t, strings.HasSuffix(res.StoredName, ".txt"))

	r, err := store.OpenRead(res.Path, false)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, content, got)
}

func TestWriteRead_CompressedRoundTrip(t *testing.T) {
	store := newTestStore(t)
	// Repetitive content so the stored artifact is actually smaller.
	content := bytes.Repeat([]byte("abcdefgh"), 4096)

	res, err := store.Write(context.Background(), bytes.NewReader(content), "report.pdf", true)
	require.NoError(t, err)

	// Size reflects the original input, not the compressed artifact.
	assert.Equal(t, int64(len(content)), res.Size)
	assert.True(t, res.Compressed)
	assert.True(t, strings.HasSuffix(res.Path, ".pdf.gz"))

	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), res.Size)

	r, err := store.OpenRead(res.Path, true)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, content, got)
}

func TestWrite_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Write(ctx, bytes.NewReader([]byte("data")), "a.txt", false)
	assert.Error(t, err)
}

func TestDelete_Idempotent(t *testing.T) {
	store := newTestStore(t)

	res, err := store.Write(context.Background(), bytes.NewReader([]byte("x")), "a.txt", false)
	require.NoError(t, err)

	assert.NoError(t, store.Delete(res.Path))
	assert.NoError(t, store.Delete(res.Path)) // second delete is a no-op
	assert.NoError(t, store.Delete("never-existed"))
}

func TestDelete_DeferredWhileReading(t *testing.T) {
	store := newTestStore(t)
	content := []byte("still being downloaded")

	res, err := store.Write(context.Background(), bytes.NewReader(content), "a.txt", false)
	require.NoError(t, err)

	r, err := store.OpenRead(res.Path, false)
	require.NoError(t, err)

	// Delete while a reader is in flight: the bytes must stay readable.
	require.NoError(t, store.Delete(res.Path))

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// A new open is refused once deletion is pending.
	_, err = store.OpenRead(res.Path, false)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Last close performs the deferred removal.
	require.NoError(t, r.Close())
	_, err = os.Stat(res.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenRead_Missing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.OpenRead("no-such-path", false)
	assert.Error(t, err)
}

package content

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func chtimes(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}

func TestPutGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)

	path, err := store.Put("acme", "https://acme.example/jobs/1", []byte("<html>job</html>"))
	require.NoError(t, err)

	data, err := store.Get(path)
	require.NoError(t, err)
	require.Equal(t, "<html>job</html>", string(data))
}

func TestPutIsIdempotentOverwrite(t *testing.T) {
	store, err := New(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)

	path1, err := store.Put("acme", "https://acme.example/jobs/1", []byte("v1"))
	require.NoError(t, err)
	path2, err := store.Put("acme", "https://acme.example/jobs/1", []byte("v2"))
	require.NoError(t, err)

	require.Equal(t, path1, path2)

	data, err := store.Get(path1)
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store, err := New(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)

	_, err = store.Get("raw/acme/doesnotexist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweepOnceRemovesOnlyExpired(t *testing.T) {
	store, err := New(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)

	oldPath, err := store.Put("acme", "https://acme.example/old", []byte("old"))
	require.NoError(t, err)

	// Back-date the file so it looks older than the retention window.
	full := store.root + "/" + oldPath
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, chtimes(full, old))

	_, err = store.Put("acme", "https://acme.example/new", []byte("new"))
	require.NoError(t, err)

	removed, err := store.SweepOnce(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = store.Get(oldPath)
	require.ErrorIs(t, err, ErrNotFound)
}

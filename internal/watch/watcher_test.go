package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) (*Watcher, chan string) {
	t.Helper()
	changes := make(chan string, 16)
	w, err := New(func(p string) { changes <- p }, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, changes
}

func TestExternalWriteIsReported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	w, changes := newTestWatcher(t)
	require.NoError(t, w.Add(path))

	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("c"), 0o644))

	select {
	case got := <-changes:
		assert.Equal(t, clean(path), got)
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case <-changes:
		t.Fatal("burst should be coalesced into one notice")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestIgnoredAndUnwatchedFilesAreQuiet(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "watched.conf")
	other := filepath.Join(dir, "other.conf")
	require.NoError(t, os.WriteFile(watched, []byte("a"), 0o644))

	w, changes := newTestWatcher(t)
	require.NoError(t, w.Add(watched))
	require.NoError(t, w.Add(watched))

	w.Ignore(watched, 2*time.Second)
	require.NoError(t, os.WriteFile(watched, []byte("ours"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	select {
	case got := <-changes:
		t.Fatalf("unexpected change for %s", got)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestRemoveStopsReporting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	w, changes := newTestWatcher(t)
	require.NoError(t, w.Add(path))
	w.Remove(path)

	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))
	select {
	case got := <-changes:
		t.Fatalf("unexpected change for %s", got)
	case <-time.After(300 * time.Millisecond):
	}
}

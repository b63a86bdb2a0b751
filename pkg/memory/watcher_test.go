package memory

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestStoreWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memories.db")
	require.NoError(t, os.WriteFile(path, []byte("initial"), 0o644))

	var dirty atomic.Int64
	w, err := NewStoreWatcher(path, func() { dirty.Add(1) }, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	require.Eventually(t, func() bool {
		return dirty.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStoreWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memories.db")
	require.NoError(t, os.WriteFile(path, []byte("initial"), 0o644))

	var dirty atomic.Int64
	w, err := NewStoreWatcher(path, func() { dirty.Add(1) }, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int64(0), dirty.Load())
}

func TestStoreWatcherCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memories.db")
	require.NoError(t, os.WriteFile(path, []byte("initial"), 0o644))

	w, err := NewStoreWatcher(path, func() {}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords() []Record {
	return []Record{
		{ID: 1, Content: "north", Embedding: []float32{0, 1, 0}, CreatedAt: time.Now()},
		{ID: 2, Content: "east", Embedding: []float32{1, 0, 0}, CreatedAt: time.Now()},
		{ID: 3, Content: "northeast", Embedding: []float32{1, 1, 0}, CreatedAt: time.Now()},
	}
}

func TestVectorIndexSearch(t *testing.T) {
	idx := NewVectorIndex(3, zerolog.Nop())
	assert.Equal(t, IndexEmpty, idx.State())

	idx.Build(testRecords())
	assert.Equal(t, IndexReady, idx.State())
	assert.Equal(t, 3, idx.Size())

	matches := idx.Search([]float32{0, 2, 0}, 10, 0.5)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(1), matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, int64(3), matches[1].ID)
	assert.InDelta(t, 0.7071, matches[1].Score, 1e-3)
}

func TestVectorIndexSearchLimit(t *testing.T) {
	idx := NewVectorIndex(3, zerolog.Nop())
	idx.Build(testRecords())

	matches := idx.Search([]float32{1, 1, 0}, 1, 0)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(3), matches[0].ID)
}

func TestVectorIndexZeroNormQuery(t *testing.T) {
	idx := NewVectorIndex(3, zerolog.Nop())
	idx.Build(testRecords())

	assert.Empty(t, idx.Search([]float32{0, 0, 0}, 10, 0))
}

func TestVectorIndexSkipsUnusableRecords(t *testing.T) {
	records := append(testRecords(),
		Record{ID: 4, Content: "no embedding"},
		Record{ID: 5, Content: "wrong dimension", Embedding: []float32{1, 2}},
		Record{ID: 6, Content: "zero norm", Embedding: []float32{0, 0, 0}},
	)

	idx := NewVectorIndex(3, zerolog.Nop())
	idx.Build(records)
	assert.Equal(t, 3, idx.Size())
}

func TestVectorIndexBuildEmptyInputIsNoop(t *testing.T) {
	idx := NewVectorIndex(3, zerolog.Nop())
	idx.Build(nil)
	assert.Equal(t, IndexEmpty, idx.State())

	idx.Build(testRecords())
	idx.Build(nil)
	assert.Equal(t, IndexReady, idx.State())
	assert.Equal(t, 3, idx.Size())
}

func TestVectorIndexAdd(t *testing.T) {
	idx := NewVectorIndex(3, zerolog.Nop())
	require.NoError(t, idx.Add(7, []float32{0, 0, 1}))
	assert.Equal(t, IndexReady, idx.State())

	assert.Error(t, idx.Add(8, []float32{1, 2}))
	assert.Error(t, idx.Add(9, []float32{0, 0, 0}))
	assert.Equal(t, 1, idx.Size())
}

func TestVectorIndexSaveLoad(t *testing.T) {
	base := filepath.Join(t.TempDir(), "index", "memories")

	idx := NewVectorIndex(3, zerolog.Nop())
	idx.Build(testRecords())
	require.True(t, idx.Save(base))

	loaded := NewVectorIndex(3, zerolog.Nop())
	require.True(t, loaded.Load(base))
	assert.Equal(t, 3, loaded.Size())
	assert.Equal(t, IndexReady, loaded.State())

	matches := loaded.Search([]float32{0, 1, 0}, 1, 0.9)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].ID)
}

func TestVectorIndexSaveFailureKeepsExistingPair(t *testing.T) {
	base := filepath.Join(t.TempDir(), "memories")

	idx := NewVectorIndex(3, zerolog.Nop())
	idx.Build(testRecords())
	require.True(t, idx.Save(base))

	// Block the id-list temp file so the next save fails mid-write.
	require.NoError(t, os.Mkdir(base+".ids.json.tmp", 0o755))
	require.False(t, idx.Save(base))

	_, err := os.Stat(base + ".vec.tmp")
	require.True(t, os.IsNotExist(err), "failed save must not leave temp artifacts")

	loaded := NewVectorIndex(3, zerolog.Nop())
	require.True(t, loaded.Load(base), "previously saved pair must survive a failed save")
	assert.Equal(t, 3, loaded.Size())
}

func TestVectorIndexLoadMissingFiles(t *testing.T) {
	idx := NewVectorIndex(3, zerolog.Nop())
	assert.False(t, idx.Load(filepath.Join(t.TempDir(), "nope")))
	assert.Equal(t, IndexEmpty, idx.State())
}

func TestVectorIndexLoadRejectsCorruptBlob(t *testing.T) {
	base := filepath.Join(t.TempDir(), "memories")

	idx := NewVectorIndex(3, zerolog.Nop())
	idx.Build(testRecords())
	require.True(t, idx.Save(base))

	tests := []struct {
		name    string
		corrupt func(t *testing.T)
	}{
		{"bad magic", func(t *testing.T) {
			require.NoError(t, os.WriteFile(base+".vec", []byte("XXXXjunkjunkjunk"), 0o644))
		}},
		{"truncated blob", func(t *testing.T) {
			data, err := os.ReadFile(base + ".vec")
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(base+".vec", data[:len(data)-4], 0o644))
		}},
		{"id list mismatch", func(t *testing.T) {
			require.NoError(t, os.WriteFile(base+".ids.json", []byte("[1]"), 0o644))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, idx.Save(base))
			tt.corrupt(t)

			loaded := NewVectorIndex(3, zerolog.Nop())
			assert.False(t, loaded.Load(base))
			assert.Equal(t, IndexEmpty, loaded.State())
		})
	}
}

func TestVectorIndexLoadRejectsDimensionMismatch(t *testing.T) {
	base := filepath.Join(t.TempDir(), "memories")

	idx := NewVectorIndex(3, zerolog.Nop())
	idx.Build(testRecords())
	require.True(t, idx.Save(base))

	loaded := NewVectorIndex(5, zerolog.Nop())
	assert.False(t, loaded.Load(base))
}

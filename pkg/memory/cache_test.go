package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCachePutGet(t *testing.T) {
	cache := NewRecordCache(100, zerolog.Nop())

	rec := Record{ID: 1, Content: "hello", Scope: "work", CreatedAt: time.Now()}
	cache.Put(rec)

	got, ok := cache.Get(1)
	require.True(t, ok)
	assert.Equal(t, rec.Content, got.Content)

	_, ok = cache.Get(2)
	assert.False(t, ok)
}

func TestRecordCacheUpdateInPlace(t *testing.T) {
	cache := NewRecordCache(100, zerolog.Nop())
	cache.Put(Record{ID: 1, Content: "v1"})
	cache.Put(Record{ID: 1, Content: "v2"})

	assert.Equal(t, 1, cache.Size())
	got, _ := cache.Get(1)
	assert.Equal(t, "v2", got.Content)
}

func TestRecordCacheEvictsOldestTenth(t *testing.T) {
	cache := NewRecordCache(10000, zerolog.Nop())

	base := time.Now().Add(-24 * time.Hour)
	recs := make([]Record, 10001)
	for i := range recs {
		recs[i] = Record{
			ID:        int64(i + 1),
			Content:   fmt.Sprintf("memory %d", i+1),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
	}
	cache.PutAll(recs)

	assert.Equal(t, 9001, cache.Size())

	// The 1000 oldest (lowest ids, earliest timestamps) must be gone.
	for id := int64(1); id <= 1000; id++ {
		_, ok := cache.Get(id)
		assert.False(t, ok, "id %d should have been evicted", id)
	}
	for _, id := range []int64{1001, 5000, 10001} {
		_, ok := cache.Get(id)
		assert.True(t, ok, "id %d should have survived", id)
	}
}

func TestRecordCacheScopeFilter(t *testing.T) {
	cache := NewRecordCache(100, zerolog.Nop())
	cache.PutAll([]Record{
		{ID: 1, Content: "a", Scope: "work"},
		{ID: 2, Content: "b", Scope: "home"},
		{ID: 3, Content: "c", Scope: "work"},
	})

	assert.Len(t, cache.AllInScope("work"), 2)
	assert.Len(t, cache.AllInScope("home"), 1)
	assert.Len(t, cache.AllInScope(""), 3)
	assert.Empty(t, cache.AllInScope("other"))
}

func TestRecordCacheMaxID(t *testing.T) {
	cache := NewRecordCache(100, zerolog.Nop())
	assert.Equal(t, int64(0), cache.MaxID())

	cache.PutAll([]Record{{ID: 3}, {ID: 7}, {ID: 5}})
	assert.Equal(t, int64(7), cache.MaxID())
}

func TestRecordCacheClear(t *testing.T) {
	cache := NewRecordCache(100, zerolog.Nop())
	cache.Put(Record{ID: 1})
	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

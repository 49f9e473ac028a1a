package vectorindex

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchReturnsAtMostIndexedItemsSortedDescending(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(3)
	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0, 0}, Metadata{Title: "A"}))
	require.NoError(t, idx.Add(ctx, "b", []float32{0.7, 0.7, 0}, Metadata{Title: "B"}))
	require.NoError(t, idx.Add(ctx, "c", []float32{0, 0, 1}, Metadata{Title: "C"}))

	results, err := idx.Search(ctx, []float32{1, 0.1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := NewMemoryIndex(4)
	results, err := idx.Search(context.Background(), []float32{1, 2, 3, 4}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNegativeSimilarityIsClampedToZero(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	require.NoError(t, idx.Add(ctx, "opposite", []float32{-1, 0}, Metadata{}))

	results, err := idx.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Score)
}

func TestFilterIsAppliedAfterTopK(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	require.NoError(t, idx.Add(ctx, "sold", []float32{1, 0}, Metadata{Status: "sold", Price: 100}))
	require.NoError(t, idx.Add(ctx, "near", []float32{0.9, 0.1}, Metadata{Status: "available", Price: 100}))
	require.NoError(t, idx.Add(ctx, "far", []float32{0, 1}, Metadata{Status: "available", Price: 100}))

	// top-2 为 sold 和 near，过滤后只剩 near，far 不会被补进来
	results, err := idx.Search(ctx, []float32{1, 0}, 2, &Filter{Status: "available"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].ID)
}

func TestFilterPriceBounds(t *testing.T) {
	f := &Filter{MinPrice: Price(100), MaxPrice: Price(500)}
	assert.True(t, f.Match(Metadata{Price: 100}))
	assert.True(t, f.Match(Metadata{Price: 500}))
	assert.False(t, f.Match(Metadata{Price: 99}))
	assert.False(t, f.Match(Metadata{Price: 501}))

	var nilFilter *Filter
	assert.True(t, nilFilter.Match(Metadata{Price: 1e9}))
	assert.True(t, nilFilter.IsZero())
}

func TestFilterMergeOverwritesOnlySetFields(t *testing.T) {
	base := Filter{Status: "available", MaxPrice: Price(500)}
	merged := base.Merge(Filter{Category: "Téléphone", MaxPrice: Price(300)})

	assert.Equal(t, "available", merged.Status)
	assert.Equal(t, "Téléphone", merged.Category)
	require.NotNil(t, merged.MaxPrice)
	assert.Equal(t, 300.0, *merged.MaxPrice)
	assert.Equal(t, 500.0, *base.MaxPrice)
}

func TestReAddMakesOldPositionStale(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	require.NoError(t, idx.Add(ctx, "x", []float32{1, 0}, Metadata{Title: "old"}))
	require.NoError(t, idx.Add(ctx, "x", []float32{0, 1}, Metadata{Title: "new"}))

	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 2, idx.Positions())

	results, err := idx.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Metadata.Title)

	meta, ok := idx.Get("x")
	require.True(t, ok)
	assert.Equal(t, "new", meta.Title)

	assert.Equal(t, 1, idx.Compact())
	assert.Equal(t, 1, idx.Positions())
	results, err = idx.Search(ctx, []float32{0, 1}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestDeleteHidesItemUntilReAdded(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0}, Metadata{Title: "a"}))
	require.NoError(t, idx.Add(ctx, "b", []float32{0, 1}, Metadata{Title: "b"}))

	ok, err := idx.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = idx.Delete(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 1, idx.Len())

	results, err := idx.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	var buf bytes.Buffer
	n, err := idx.WriteSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0}, Metadata{Title: "a2"}))
	results, err = idx.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a2", results[0].Metadata.Title)
	assert.Equal(t, 1, idx.Compact())
}

func TestAddRejectsBadVectors(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(3)
	assert.ErrorIs(t, idx.Add(ctx, "a", []float32{1, 0}, Metadata{}), ErrDimensionMismatch)
	assert.ErrorIs(t, idx.Add(ctx, "a", []float32{0, 0, 0}, Metadata{}), ErrZeroVector)
	assert.ErrorIs(t, idx.Add(ctx, "", []float32{1, 0, 0}, Metadata{}), ErrEmptyID)
	assert.Equal(t, 0, idx.Len())
}

func TestDimensionInferredFromFirstAdd(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(0)
	require.NoError(t, idx.Add(ctx, "a", []float32{1, 2}, Metadata{}))
	assert.Equal(t, 2, idx.Dimension())
	assert.ErrorIs(t, idx.Add(ctx, "b", []float32{1, 2, 3}, Metadata{}), ErrDimensionMismatch)
}

func TestSnapshotRoundTripDropsStaleEntries(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryIndex(2)
	require.NoError(t, src.Add(ctx, "a", []float32{1, 0}, Metadata{Title: "A", Price: 10}))
	require.NoError(t, src.Add(ctx, "b", []float32{0, 1}, Metadata{Title: "B"}))
	require.NoError(t, src.Add(ctx, "a", []float32{1, 1}, Metadata{Title: "A2", Price: 20}))

	var buf bytes.Buffer
	written, err := src.WriteSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	dst := NewMemoryIndex(0)
	loaded, err := dst.ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, dst.Positions())
	assert.Equal(t, 2, dst.Dimension())

	meta, ok := dst.Get("a")
	require.True(t, ok)
	assert.Equal(t, "A2", meta.Title)
	assert.Equal(t, 20.0, meta.Price)
}

func TestReadSnapshotKeepsLiveEntries(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryIndex(2)
	require.NoError(t, src.Add(ctx, "a", []float32{1, 0}, Metadata{Title: "A-old"}))
	require.NoError(t, src.Add(ctx, "b", []float32{0, 1}, Metadata{Title: "B"}))
	var buf bytes.Buffer
	_, err := src.WriteSnapshot(&buf)
	require.NoError(t, err)

	// 加载期间消费者已写入更新的 a
	dst := NewMemoryIndex(2)
	require.NoError(t, dst.Add(ctx, "a", []float32{1, 1}, Metadata{Title: "A-new"}))
	loaded, err := dst.ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 2, dst.Len())

	meta, ok := dst.Get("a")
	require.True(t, ok)
	assert.Equal(t, "A-new", meta.Title)
	meta, ok = dst.Get("b")
	require.True(t, ok)
	assert.Equal(t, "B", meta.Title)

	results, err := dst.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A-new", results[0].Metadata.Title)
}

func TestReadSnapshotRejectsOtherDimension(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryIndex(3)
	require.NoError(t, src.Add(ctx, "a", []float32{1, 0, 0}, Metadata{}))
	var buf bytes.Buffer
	_, err := src.WriteSnapshot(&buf)
	require.NoError(t, err)

	dst := NewMemoryIndex(2)
	_, err = dst.ReadSnapshot(&buf)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, dst.Len())
}

func TestGetDuringCompact(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	for i := 0; i < 100; i++ {
		require.NoError(t, idx.Add(ctx, fmt.Sprintf("item-%d", i), []float32{1, float32(i)}, Metadata{Title: fmt.Sprintf("item-%d", i)}))
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			id := fmt.Sprintf("item-%d", i%100)
			_ = idx.Add(ctx, id, []float32{1, float32(i)}, Metadata{Title: id})
			if i%20 == 0 {
				idx.Compact()
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			id := fmt.Sprintf("item-%d", i%100)
			meta, ok := idx.Get(id)
			assert.True(t, ok)
			assert.Equal(t, id, meta.Title)
		}
	}()
	wg.Wait()
}

func TestConcurrentAddAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(4)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				v := []float32{float32(w + 1), float32(i + 1), 1, 0.5}
				_ = idx.Add(ctx, fmt.Sprintf("item-%d-%d", w, i%50), v, Metadata{Price: float64(i)})
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				results, err := idx.Search(ctx, []float32{1, 1, 1, 1}, 5, nil)
				if !assert.NoError(t, err) {
					return
				}
				assert.LessOrEqual(t, len(results), 5)
				seen := map[string]bool{}
				for _, res := range results {
					assert.False(t, seen[res.ID], "duplicate id %s", res.ID)
					seen[res.ID] = true
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, idx.Len())
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/internal/pipeline"
	"myreprise-chatbot-go/pkg/tasks"
	"myreprise-chatbot-go/pkg/vectorindex"
)

type fakeCatalog struct {
	items []model.CatalogItem
}

func (f *fakeCatalog) FindByID(_ context.Context, id uint) (*model.CatalogItem, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			item := f.items[i]
			return &item, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) FindWithPagination(_ context.Context, offset, limit int) ([]model.CatalogItem, int64, error) {
	end := offset + limit
	if end > len(f.items) {
		end = len(f.items)
	}
	return f.items[offset:end], int64(len(f.items)), nil
}

func (f *fakeCatalog) FindBatches(_ context.Context, batchSize int, fn func([]model.CatalogItem) error) error {
	for i := 0; i < len(f.items); i += batchSize {
		end := i + batchSize
		if end > len(f.items) {
			end = len(f.items)
		}
		if err := fn(f.items[i:end]); err != nil {
			return err
		}
	}
	return nil
}

type memorySnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memorySnapshots) Save(_ context.Context, object string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[object] = append([]byte(nil), data...)
	return nil
}

func (m *memorySnapshots) Load(_ context.Context, object string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[object], nil
}

type recordingProducer struct {
	tasks []tasks.ItemIndexTask
}

func (r *recordingProducer) ProduceItemTask(_ context.Context, task tasks.ItemIndexTask) error {
	r.tasks = append(r.tasks, task)
	return nil
}

func sampleCatalog() *fakeCatalog {
	return &fakeCatalog{items: []model.CatalogItem{
		{ID: 1, Title: "iPhone 12", Price: 300, Category: "Smartphones", Brand: "Apple", Status: "available"},
		{ID: 2, Title: "MacBook Air", Price: 1500, Category: "Ordinateurs", Brand: "Apple", Status: "available"},
		{ID: 3, Title: "", Description: ""},
	}}
}

func newIndexFixture(catalog *fakeCatalog, embedder *fakeEmbedder, producer TaskProducer) (IndexService, *vectorindex.MemoryIndex, *memorySnapshots) {
	idx := vectorindex.NewMemoryIndex(3)
	snaps := &memorySnapshots{}
	svc := NewIndexService(IndexDeps{
		Backend:        "memory",
		Index:          idx,
		Indexer:        pipeline.NewProcessor(catalog, embedder, idx),
		Catalog:        catalog,
		Producer:       producer,
		Snapshots:      snaps,
		SnapshotObject: "index/offers.snapshot",
	})
	return svc, idx, snaps
}

func TestReindexIndexesCatalogAndSkipsEmptyItems(t *testing.T) {
	svc, idx, _ := newIndexFixture(sampleCatalog(), &fakeEmbedder{}, nil)

	indexed, failed, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	// 没有文本的商品被跳过但不算失败
	assert.Equal(t, 3, indexed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 2, idx.Len())

	meta, ok := idx.Get("2")
	require.True(t, ok)
	assert.Equal(t, "MacBook Air", meta.Title)
}

func TestReindexCountsFailures(t *testing.T) {
	svc, idx, _ := newIndexFixture(sampleCatalog(), &fakeEmbedder{err: errors.New("embedding api down")}, nil)
	indexed, failed, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)
	assert.Equal(t, 2, failed)
	assert.Equal(t, 0, idx.Len())
}

func TestReindexWithoutCatalog(t *testing.T) {
	svc := NewIndexService(IndexDeps{Index: vectorindex.NewMemoryIndex(3)})
	_, _, err := svc.Reindex(context.Background())
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestEnqueueRunsInlineOrProduces(t *testing.T) {
	ctx := context.Background()
	catalog := sampleCatalog()
	inline, idx, _ := newIndexFixture(catalog, &fakeEmbedder{}, nil)

	require.NoError(t, inline.Enqueue(ctx, tasks.ItemIndexTask{ItemID: 1}))
	assert.Equal(t, 1, idx.Len())
	require.NoError(t, inline.Enqueue(ctx, tasks.ItemIndexTask{ItemID: 1, Action: tasks.ActionDelete}))
	assert.Equal(t, 0, idx.Len())
	// 商品已不在目录中时按删除处理
	require.NoError(t, inline.Enqueue(ctx, tasks.ItemIndexTask{ItemID: 99}))

	producer := &recordingProducer{}
	queued, idx2, _ := newIndexFixture(catalog, &fakeEmbedder{}, producer)
	require.NoError(t, queued.Enqueue(ctx, tasks.ItemIndexTask{ItemID: 2}))
	require.Len(t, producer.tasks, 1)
	assert.Equal(t, tasks.ActionUpsert, producer.tasks[0].Action)
	assert.Equal(t, 0, idx2.Len())
}

func TestSnapshotSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	svc, idx, snaps := newIndexFixture(sampleCatalog(), &fakeEmbedder{}, nil)

	n, err := svc.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, _, err = svc.Reindex(ctx)
	require.NoError(t, err)
	n, err = svc.SaveSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	restored := vectorindex.NewMemoryIndex(3)
	other := NewIndexService(IndexDeps{Index: restored, Snapshots: snaps, SnapshotObject: "index/offers.snapshot"})
	n, err = other.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, idx.Len(), restored.Len())
}

func TestCompactAndStats(t *testing.T) {
	ctx := context.Background()
	svc, idx, _ := newIndexFixture(sampleCatalog(), &fakeEmbedder{}, nil)
	_, _, err := svc.Reindex(ctx)
	require.NoError(t, err)
	_, _, err = svc.Reindex(ctx)
	require.NoError(t, err)

	stats := svc.Stats()
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, 2, stats.Items)
	assert.Equal(t, 4, stats.Positions)

	removed, err := svc.Compact()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, idx.Positions())
}

type plainIndex struct{ vectorindex.Index }

func TestSnapshotUnsupportedForRemoteBackends(t *testing.T) {
	svc := NewIndexService(IndexDeps{Index: plainIndex{vectorindex.NewMemoryIndex(3)}, Snapshots: &memorySnapshots{}})
	_, err := svc.SaveSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrSnapshotUnsupported)
	_, err = svc.Compact()
	assert.ErrorIs(t, err, ErrSnapshotUnsupported)
}

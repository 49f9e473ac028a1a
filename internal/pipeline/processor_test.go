package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/pkg/tasks"
	"myreprise-chatbot-go/pkg/vectorindex"
)

type staticEmbedder struct {
	texts []string
	err   error
}

func (s *staticEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 1}, nil
}

type singleItemCatalog struct {
	item *model.CatalogItem
	err  error
}

func (c singleItemCatalog) FindByID(_ context.Context, id uint) (*model.CatalogItem, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.item == nil || c.item.ID != id {
		return nil, nil
	}
	return c.item, nil
}

func (c singleItemCatalog) FindWithPagination(context.Context, int, int) ([]model.CatalogItem, int64, error) {
	return nil, 0, nil
}

func (c singleItemCatalog) FindBatches(context.Context, int, func([]model.CatalogItem) error) error {
	return nil
}

func TestItemText(t *testing.T) {
	item := &model.CatalogItem{
		Title:       "Peugeot 208",
		Description: "Première main",
		Category:    "Voitures",
		Brand:       "Peugeot",
		Condition:   "good",
		Price:       8500.5,
		ListingType: "vehicle",
	}
	assert.Equal(t,
		"Peugeot 208 Première main Catégorie: Voitures Marque: Peugeot État: Bon état Prix: 8500.5€ Type: Véhicule",
		ItemText(item))
	assert.Equal(t, "Vélo Type: bike", ItemText(&model.CatalogItem{Title: "Vélo", ListingType: "bike"}))
	assert.Empty(t, ItemText(&model.CatalogItem{}))
}

func TestMetadataDefaultsStatusToAvailable(t *testing.T) {
	meta := MetadataOf(&model.CatalogItem{Title: "x"})
	assert.Equal(t, vectorindex.StatusAvailable, meta.Status)
	assert.Equal(t, "sold", MetadataOf(&model.CatalogItem{Status: "sold"}).Status)
}

func TestProcessUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.NewMemoryIndex(2)
	item := &model.CatalogItem{ID: 7, Title: "iPhone 12", Price: 300, Brand: "Apple"}
	embedder := &staticEmbedder{}
	p := NewProcessor(singleItemCatalog{item: item}, embedder, idx)

	require.NoError(t, p.Process(ctx, tasks.ItemIndexTask{ItemID: 7, Action: tasks.ActionUpsert}))
	meta, ok := idx.Get("7")
	require.True(t, ok)
	assert.Equal(t, "Apple", meta.Brand)
	assert.Equal(t, []string{"iPhone 12 Marque: Apple Prix: 300€"}, embedder.texts)

	require.NoError(t, p.Process(ctx, tasks.ItemIndexTask{ItemID: 7, Action: tasks.ActionDelete}))
	assert.Equal(t, 0, idx.Len())

	// 未知任务类型被忽略
	require.NoError(t, p.Process(ctx, tasks.ItemIndexTask{ItemID: 7, Action: "archive"}))
	assert.Equal(t, 0, idx.Len())
}

func TestProcessReturnsErrorsForRetry(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.NewMemoryIndex(2)

	p := NewProcessor(singleItemCatalog{err: errors.New("mysql gone")}, &staticEmbedder{}, idx)
	assert.Error(t, p.Process(ctx, tasks.ItemIndexTask{ItemID: 1}))

	item := &model.CatalogItem{ID: 1, Title: "x"}
	p = NewProcessor(singleItemCatalog{item: item}, &staticEmbedder{err: errors.New("timeout")}, idx)
	assert.Error(t, p.Process(ctx, tasks.ItemIndexTask{ItemID: 1}))

	p = NewProcessor(nil, &staticEmbedder{}, idx)
	assert.Error(t, p.Process(ctx, tasks.ItemIndexTask{ItemID: 1}))
}

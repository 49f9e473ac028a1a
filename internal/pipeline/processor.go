// Package pipeline 定义了商品向量化入库的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/internal/repository"
	"myreprise-chatbot-go/pkg/embedding"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/metrics"
	"myreprise-chatbot-go/pkg/tasks"
	"myreprise-chatbot-go/pkg/vectorindex"
)

// listingTypeLabels 商品类型的法语显示名
var listingTypeLabels = map[string]string{
	"vehicle":  "Véhicule",
	"item":     "Article",
	"property": "Propriété",
}

// Processor 封装了商品索引任务的所有依赖和逻辑。
type Processor struct {
	catalog  repository.CatalogRepository
	embedder embedding.Client
	index    vectorindex.Index
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(catalog repository.CatalogRepository, embedder embedding.Client, index vectorindex.Index) *Processor {
	return &Processor{catalog: catalog, embedder: embedder, index: index}
}

// Process 处理一条商品索引任务：upsert 时重新向量化并写入索引，
// delete 或商品已不存在时从索引中移除。
func (p *Processor) Process(ctx context.Context, task tasks.ItemIndexTask) error {
	log.Infof("[Processor] 开始处理商品索引任务, ItemID: %d, Action: %s", task.ItemID, task.Action)
	id := strconv.FormatUint(uint64(task.ItemID), 10)

	switch task.Action {
	case tasks.ActionDelete:
		return p.remove(ctx, id)
	case tasks.ActionUpsert, "":
	default:
		log.Warnf("[Processor] 未知的任务类型, 忽略: %s", task.Action)
		return nil
	}

	if p.catalog == nil {
		return errors.New("catalog repository not configured")
	}
	item, err := p.catalog.FindByID(ctx, task.ItemID)
	if err != nil {
		log.Errorf("[Processor] 读取商品失败, ItemID: %d, Error: %v", task.ItemID, err)
		return fmt.Errorf("读取商品失败: %w", err)
	}
	if item == nil {
		log.Infof("[Processor] 商品已不存在, 从索引中移除, ItemID: %d", task.ItemID)
		return p.remove(ctx, id)
	}
	return p.IndexItem(ctx, item)
}

// IndexItem 向量化单个商品并写入索引。
func (p *Processor) IndexItem(ctx context.Context, item *model.CatalogItem) error {
	text := ItemText(item)
	if text == "" {
		log.Warnf("[Processor] 商品没有可向量化的文本, 跳过, ItemID: %d", item.ID)
		return nil
	}
	vector, err := p.embedder.CreateEmbedding(ctx, text)
	if err != nil {
		log.Errorf("[Processor] 商品向量化失败, ItemID: %d, Error: %v", item.ID, err)
		return fmt.Errorf("商品 %d 向量化失败: %w", item.ID, err)
	}
	id := strconv.FormatUint(uint64(item.ID), 10)
	if err := p.index.Add(ctx, id, vector, MetadataOf(item)); err != nil {
		log.Errorf("[Processor] 写入向量索引失败, ItemID: %d, Error: %v", item.ID, err)
		return fmt.Errorf("写入向量索引失败: %w", err)
	}
	metrics.IndexedItems.Set(float64(p.index.Len()))
	log.Debugf("[Processor] 商品索引成功, ItemID: %d", item.ID)
	return nil
}

func (p *Processor) remove(ctx context.Context, id string) error {
	removed, err := p.index.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("从向量索引删除商品失败: %w", err)
	}
	if removed {
		metrics.IndexedItems.Set(float64(p.index.Len()))
		log.Infof("[Processor] 已从索引移除商品: %s", id)
	}
	return nil
}

// ItemText 拼接商品用于向量化的文本。
func ItemText(item *model.CatalogItem) string {
	parts := make([]string, 0, 7)
	if t := strings.TrimSpace(item.Title); t != "" {
		parts = append(parts, t)
	}
	if d := strings.TrimSpace(item.Description); d != "" {
		parts = append(parts, d)
	}
	if item.Category != "" {
		parts = append(parts, "Catégorie: "+item.Category)
	}
	if item.Brand != "" {
		parts = append(parts, "Marque: "+item.Brand)
	}
	if item.Condition != "" {
		parts = append(parts, "État: "+model.ConditionLabel(item.Condition))
	}
	if item.Price > 0 {
		parts = append(parts, "Prix: "+strconv.FormatFloat(item.Price, 'f', -1, 64)+"€")
	}
	if item.ListingType != "" {
		label, ok := listingTypeLabels[item.ListingType]
		if !ok {
			label = item.ListingType
		}
		parts = append(parts, "Type: "+label)
	}
	return strings.Join(parts, " ")
}

// MetadataOf 提取与向量一起保存的商品元数据。
func MetadataOf(item *model.CatalogItem) vectorindex.Metadata {
	status := item.Status
	if status == "" {
		status = vectorindex.StatusAvailable
	}
	return vectorindex.Metadata{
		Title:     item.Title,
		Price:     item.Price,
		Category:  item.Category,
		Brand:     item.Brand,
		Condition: item.Condition,
		Status:    status,
	}
}

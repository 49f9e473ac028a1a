package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/internal/repository"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/metrics"
	"myreprise-chatbot-go/pkg/storage"
	"myreprise-chatbot-go/pkg/tasks"
	"myreprise-chatbot-go/pkg/vectorindex"
)

const reindexBatchSize = 200

var (
	// ErrCatalogUnavailable 没有配置商品目录数据库。
	ErrCatalogUnavailable = errors.New("catalog repository not configured")
	// ErrSnapshotUnsupported 当前索引后端或存储不支持快照。
	ErrSnapshotUnsupported = errors.New("snapshots not supported by this index backend")
)

// ItemIndexer 执行单个商品的索引任务。
type ItemIndexer interface {
	Process(ctx context.Context, task tasks.ItemIndexTask) error
	IndexItem(ctx context.Context, item *model.CatalogItem) error
}

// TaskProducer 把索引任务投递到消息队列。
type TaskProducer interface {
	ProduceItemTask(ctx context.Context, task tasks.ItemIndexTask) error
}

// snapshotter 由支持快照的索引实现（内存索引）。
type snapshotter interface {
	WriteSnapshot(w io.Writer) (int, error)
	ReadSnapshot(r io.Reader) (int, error)
	Compact() int
	Positions() int
}

// IndexStats 是向量索引的统计信息。
type IndexStats struct {
	Backend   string `json:"backend"`
	Items     int    `json:"items"`
	Positions int    `json:"positions,omitempty"`
}

// IndexService 定义了向量索引的管理操作。
type IndexService interface {
	// Enqueue 投递单个商品的索引任务，没有消息队列时同步执行
	Enqueue(ctx context.Context, task tasks.ItemIndexTask) error
	Reindex(ctx context.Context) (indexed int, failed int, err error)
	Compact() (int, error)
	SaveSnapshot(ctx context.Context) (int, error)
	LoadSnapshot(ctx context.Context) (int, error)
	Stats() IndexStats
}

type indexService struct {
	backend   string
	index     vectorindex.Index
	indexer   ItemIndexer
	catalog   repository.CatalogRepository
	producer  TaskProducer
	snapshots storage.SnapshotStore
	object    string
}

// IndexDeps 索引管理依赖的组件，catalog、producer、snapshots 均可为 nil。
type IndexDeps struct {
	Backend        string
	Index          vectorindex.Index
	Indexer        ItemIndexer
	Catalog        repository.CatalogRepository
	Producer       TaskProducer
	Snapshots      storage.SnapshotStore
	SnapshotObject string
}

// NewIndexService 创建一个新的 IndexService 实例。
func NewIndexService(deps IndexDeps) IndexService {
	return &indexService{
		backend:   deps.Backend,
		index:     deps.Index,
		indexer:   deps.Indexer,
		catalog:   deps.Catalog,
		producer:  deps.Producer,
		snapshots: deps.Snapshots,
		object:    deps.SnapshotObject,
	}
}

func (s *indexService) Enqueue(ctx context.Context, task tasks.ItemIndexTask) error {
	if task.Action == "" {
		task.Action = tasks.ActionUpsert
	}
	if s.producer != nil {
		if err := s.producer.ProduceItemTask(ctx, task); err != nil {
			return fmt.Errorf("failed to produce index task: %w", err)
		}
		log.Infof("[IndexService] 索引任务已投递, ItemID: %d, Action: %s", task.ItemID, task.Action)
		return nil
	}
	return s.indexer.Process(ctx, task)
}

// Reindex 从商品目录全量重建索引，单个商品失败不会中止整个过程。
func (s *indexService) Reindex(ctx context.Context) (int, int, error) {
	if s.catalog == nil {
		return 0, 0, ErrCatalogUnavailable
	}
	log.Info("[IndexService] 开始从商品目录全量索引")
	indexed, failed := 0, 0
	err := s.catalog.FindBatches(ctx, reindexBatchSize, func(items []model.CatalogItem) error {
		for i := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.indexer.IndexItem(ctx, &items[i]); err != nil {
				failed++
				continue
			}
			indexed++
		}
		log.Infof("[IndexService] 索引进度: 成功 %d, 失败 %d", indexed, failed)
		return nil
	})
	metrics.IndexedItems.Set(float64(s.index.Len()))
	if err != nil {
		return indexed, failed, fmt.Errorf("failed to reindex catalog: %w", err)
	}
	log.Infof("[IndexService] 全量索引完成: 成功 %d, 失败 %d", indexed, failed)
	return indexed, failed, nil
}

// Compact 回收内存索引中的过期位置。
func (s *indexService) Compact() (int, error) {
	snap, ok := s.index.(snapshotter)
	if !ok {
		return 0, ErrSnapshotUnsupported
	}
	return snap.Compact(), nil
}

// SaveSnapshot 把内存索引写入对象存储。
func (s *indexService) SaveSnapshot(ctx context.Context) (int, error) {
	snap, ok := s.index.(snapshotter)
	if !ok || s.snapshots == nil {
		return 0, ErrSnapshotUnsupported
	}
	var buf bytes.Buffer
	n, err := snap.WriteSnapshot(&buf)
	if err != nil {
		return 0, fmt.Errorf("failed to encode index snapshot: %w", err)
	}
	if err := s.snapshots.Save(ctx, s.object, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("failed to upload index snapshot: %w", err)
	}
	log.Infof("[IndexService] 索引快照已保存: %s, 商品数: %d", s.object, n)
	return n, nil
}

// LoadSnapshot 从对象存储恢复内存索引中缺失的商品，快照不存在时返回 0。
func (s *indexService) LoadSnapshot(ctx context.Context) (int, error) {
	snap, ok := s.index.(snapshotter)
	if !ok || s.snapshots == nil {
		return 0, ErrSnapshotUnsupported
	}
	data, err := s.snapshots.Load(ctx, s.object)
	if err != nil {
		return 0, fmt.Errorf("failed to download index snapshot: %w", err)
	}
	if data == nil {
		log.Infof("[IndexService] 快照不存在, 跳过加载: %s", s.object)
		return 0, nil
	}
	n, err := snap.ReadSnapshot(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode index snapshot: %w", err)
	}
	metrics.IndexedItems.Set(float64(s.index.Len()))
	log.Infof("[IndexService] 索引快照已加载: %s, 新增商品数: %d", s.object, n)
	return n, nil
}

func (s *indexService) Stats() IndexStats {
	stats := IndexStats{Backend: s.backend, Items: s.index.Len()}
	if snap, ok := s.index.(snapshotter); ok {
		stats.Positions = snap.Positions()
	}
	return stats
}

package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"myreprise-chatbot-go/internal/model"
)

// CatalogRepository 接口定义了商品目录的读取操作。
type CatalogRepository interface {
	FindByID(ctx context.Context, id uint) (*model.CatalogItem, error)
	FindWithPagination(ctx context.Context, offset, limit int) ([]model.CatalogItem, int64, error)
	// FindBatches 按主键顺序分批遍历全部商品
	FindBatches(ctx context.Context, batchSize int, fn func(items []model.CatalogItem) error) error
}

// catalogRepository 是 CatalogRepository 接口的 GORM 实现。
type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建一个新的 CatalogRepository 实例。
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// FindByID 根据商品 ID 查找商品，不存在时返回 (nil, nil)。
func (r *catalogRepository) FindByID(ctx context.Context, id uint) (*model.CatalogItem, error) {
	var item model.CatalogItem
	err := r.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindWithPagination 分页检索商品，返回商品列表与总数。
func (r *catalogRepository) FindWithPagination(ctx context.Context, offset, limit int) ([]model.CatalogItem, int64, error) {
	var items []model.CatalogItem
	var total int64

	db := r.db.WithContext(ctx).Model(&model.CatalogItem{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("id").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// FindBatches 分批读取全部商品并交给 fn 处理。
func (r *catalogRepository) FindBatches(ctx context.Context, batchSize int, fn func(items []model.CatalogItem) error) error {
	var batch []model.CatalogItem
	result := r.db.WithContext(ctx).Order("id").FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		return fn(batch)
	})
	return result.Error
}

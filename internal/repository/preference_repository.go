package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"myreprise-chatbot-go/internal/model"
)

// PreferenceRepository 定义了对 chatbot_user_preferences 表的数据操作接口。
type PreferenceRepository interface {
	Find(ctx context.Context, userID string) (*model.UserPreference, error)
	Upsert(ctx context.Context, pref *model.UserPreference) error
	Delete(ctx context.Context, userID string) error
}

type preferenceRepository struct {
	db *gorm.DB
}

// NewPreferenceRepository 创建一个新的 PreferenceRepository 实例。
func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

// Find 查找用户的显式偏好，不存在时返回 (nil, nil)。
func (r *preferenceRepository) Find(ctx context.Context, userID string) (*model.UserPreference, error) {
	var pref model.UserPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// Upsert 插入或整体更新用户偏好。
func (r *preferenceRepository) Upsert(ctx context.Context, pref *model.UserPreference) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(pref).Error
}

// Delete 删除用户偏好。
func (r *preferenceRepository) Delete(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.UserPreference{}).Error
}

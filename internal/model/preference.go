package model

import "time"

// UserPreference 保存用户显式修改过的偏好，覆盖偏好服务返回的值。
type UserPreference struct {
	UserID            string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Categories        []string  `gorm:"serializer:json;type:json" json:"preferred_categories"`
	Brands            []string  `gorm:"serializer:json;type:json" json:"preferred_brands"`
	MinPrice          float64   `json:"min_price"`
	MaxPrice          float64   `json:"max_price"`
	ConversationStyle string    `gorm:"type:varchar(16)" json:"conversation_style"`
	Language          string    `gorm:"type:varchar(8)" json:"language"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserPreference) TableName() string {
	return "chatbot_user_preferences"
}

// PreferenceFromProfile 从画像生成需要持久化的偏好记录。
func PreferenceFromProfile(p *UserProfile) *UserPreference {
	return &UserPreference{
		UserID:            p.UserID,
		Categories:        append([]string{}, p.PreferredCategories...),
		Brands:            append([]string{}, p.PreferredBrands...),
		MinPrice:          p.PriceRange.Min,
		MaxPrice:          p.PriceRange.Max,
		ConversationStyle: p.ConversationStyle,
		Language:          p.Language,
		UpdatedAt:         p.PreferencesUpdatedAt,
	}
}

// Overlay 把显式偏好覆盖到画像上。
func (u *UserPreference) Overlay(p *UserProfile) {
	p.PreferredCategories = append([]string{}, u.Categories...)
	p.PreferredBrands = append([]string{}, u.Brands...)
	p.PriceRange = PriceRange{Min: u.MinPrice, Max: u.MaxPrice}.Normalize()
	if ValidStyle(u.ConversationStyle) {
		p.ConversationStyle = u.ConversationStyle
	}
	if ValidLanguage(u.Language) {
		p.Language = u.Language
	}
	p.PreferencesUpdatedAt = u.UpdatedAt
	p.IsDefault = false
}

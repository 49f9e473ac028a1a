package model

import "time"

// CatalogItem 对应 MySQL 中的商品表，是向量索引的数据来源。
type CatalogItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Price       float64   `gorm:"not null;default:0" json:"price"`
	Category    string    `gorm:"type:varchar(100);index" json:"category"`
	Brand       string    `gorm:"type:varchar(100);index" json:"brand"`
	Condition   string    `gorm:"column:item_condition;type:varchar(32)" json:"condition"`
	Status      string    `gorm:"type:varchar(32);index;default:available" json:"status"`
	ListingType string    `gorm:"type:varchar(32)" json:"listing_type"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CatalogItem) TableName() string {
	return "offers"
}

// ConditionLabels 商品成色的法语显示名
var ConditionLabels = map[string]string{
	"new":      "Neuf",
	"like_new": "Comme neuf",
	"good":     "Bon état",
	"fair":     "État correct",
}

// ConditionLabel 返回成色的显示名，未知成色原样返回。
func ConditionLabel(condition string) string {
	if label, ok := ConditionLabels[condition]; ok {
		return label
	}
	return condition
}

package model

import (
	"sort"
	"strings"
	"time"
)

const (
	// MaxInteractionHistory 画像中保留的交互记录上限
	MaxInteractionHistory = 50
	// DefaultMaxPrice 默认画像的价格上限
	DefaultMaxPrice = 10000
)

var (
	// ConversationStyles 允许的对话风格
	ConversationStyles = []string{"formal", "casual", "technical"}
	// Languages 允许的语言
	Languages = []string{"fr", "ar", "en"}
)

// PriceRange 是用户可接受的价格区间，始终保证 Min <= Max。
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Normalize 把区间修正为非负且 Min <= Max。
func (p PriceRange) Normalize() PriceRange {
	if p.Min < 0 {
		p.Min = 0
	}
	if p.Max < 0 {
		p.Max = 0
	}
	if p.Min > p.Max {
		p.Min, p.Max = p.Max, p.Min
	}
	return p
}

// Contains 判断价格是否落在区间内。
func (p PriceRange) Contains(price float64) bool {
	return price >= p.Min && price <= p.Max
}

// InteractionRecord 是画像中的一条交互记录。
type InteractionRecord struct {
	Type      string    `json:"type"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UserProfile 是用户的偏好画像。
type UserProfile struct {
	UserID               string              `json:"user_id"`
	PreferredCategories  []string            `json:"preferred_categories"`
	PreferredBrands      []string            `json:"preferred_brands"`
	PriceRange           PriceRange          `json:"price_range"`
	InteractionHistory   []InteractionRecord `json:"interaction_history"`
	ConversationStyle    string              `json:"conversation_style"`
	Language             string              `json:"language"`
	LastInteraction      time.Time           `json:"last_interaction"`
	PreferencesUpdatedAt time.Time           `json:"preferences_updated_at"`
	// 画像是否来自默认值（偏好服务不可用或无数据）
	IsDefault bool `json:"is_default"`
}

// DefaultProfile 返回一个空偏好的默认画像。
func DefaultProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:              userID,
		PreferredCategories: []string{},
		PreferredBrands:     []string{},
		PriceRange:          PriceRange{Min: 0, Max: DefaultMaxPrice},
		InteractionHistory:  []InteractionRecord{},
		ConversationStyle:   "casual",
		Language:            "fr",
		IsDefault:           true,
	}
}

// Clone 返回画像的深拷贝。
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.PreferredCategories = append([]string{}, p.PreferredCategories...)
	out.PreferredBrands = append([]string{}, p.PreferredBrands...)
	out.InteractionHistory = append([]InteractionRecord{}, p.InteractionHistory...)
	return &out
}

// Normalize 对偏好集合去重排序、修正价格区间并截断交互历史。
func (p *UserProfile) Normalize() {
	p.PreferredCategories = UnionSet(nil, p.PreferredCategories)
	p.PreferredBrands = UnionSet(nil, p.PreferredBrands)
	p.PriceRange = p.PriceRange.Normalize()
	if len(p.InteractionHistory) > MaxInteractionHistory {
		p.InteractionHistory = p.InteractionHistory[len(p.InteractionHistory)-MaxInteractionHistory:]
	}
	if p.InteractionHistory == nil {
		p.InteractionHistory = []InteractionRecord{}
	}
	if !contains(ConversationStyles, p.ConversationStyle) {
		p.ConversationStyle = "casual"
	}
	if !contains(Languages, p.Language) {
		p.Language = "fr"
	}
}

// HasPreferences 判断画像是否已有类目或品牌偏好。
func (p *UserProfile) HasPreferences() bool {
	return p != nil && (len(p.PreferredCategories) > 0 || len(p.PreferredBrands) > 0)
}

// PrefersCategory 大小写不敏感地判断类目是否在偏好中。
func (p *UserProfile) PrefersCategory(category string) bool {
	return category != "" && containsFold(p.PreferredCategories, category)
}

// PrefersBrand 大小写不敏感地判断品牌是否在偏好中。
func (p *UserProfile) PrefersBrand(brand string) bool {
	return brand != "" && containsFold(p.PreferredBrands, brand)
}

// ItemSignal 是一次交互中涉及的商品特征。
type ItemSignal struct {
	ItemID   string  `json:"item_id"`
	Category string  `json:"category"`
	Brand    string  `json:"brand"`
	Price    float64 `json:"price"`
}

// InteractionSignals 是 learn 操作的输入。
type InteractionSignals struct {
	Type        string       `json:"type"`
	ViewedItems []ItemSignal `json:"viewed_items"`
	LikedItems  []ItemSignal `json:"liked_items"`
	// 用户明确提到的价格
	Prices    []float64 `json:"prices"`
	Timestamp time.Time `json:"timestamp"`
}

// Empty 判断信号是否不含任何可学习的内容。
func (s InteractionSignals) Empty() bool {
	return len(s.ViewedItems) == 0 && len(s.LikedItems) == 0 && len(s.Prices) == 0
}

// PreferencesUpdate 是用户显式修改偏好的请求，nil 字段表示不修改。
type PreferencesUpdate struct {
	PreferredCategories *[]string   `json:"preferred_categories,omitempty"`
	PreferredBrands     *[]string   `json:"preferred_brands,omitempty"`
	PriceRange          *PriceRange `json:"price_range,omitempty"`
	ConversationStyle   *string     `json:"conversation_style,omitempty"`
	Language            *string     `json:"language,omitempty"`
}

// UnionSet 返回 a 与 b 的并集（大小写不敏感去重，保留首次出现的写法），按字母序排列。
func UnionSet(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			key := strings.ToLower(v)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

// ValidStyle 判断对话风格是否合法。
func ValidStyle(style string) bool { return contains(ConversationStyles, style) }

// ValidLanguage 判断语言是否合法。
func ValidLanguage(lang string) bool { return contains(Languages, lang) }

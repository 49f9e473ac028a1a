// Package vectorindex 提供商品向量的相似度检索。
//
// 内存实现是一个只追加的扁平内积索引：同一个 ID 重复添加时，最新的向量生效，
// 旧位置变为过期位置，在检索时被跳过，直到 Compact 重建索引。
package vectorindex

import (
	"context"
	"errors"
	"math"
	"strings"
)

var (
	// ErrDimensionMismatch 向量维度与索引维度不一致。
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrZeroVector 向量范数为 0，无法归一化。
	ErrZeroVector = errors.New("zero-norm vector")
	// ErrEmptyID 商品 ID 为空。
	ErrEmptyID = errors.New("empty item id")
)

// StatusAvailable 在售商品的状态值
const StatusAvailable = "available"

// Metadata 是与向量一起保存的商品快照。
type Metadata struct {
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Category  string  `json:"category"`
	Brand     string  `json:"brand"`
	Condition string  `json:"condition"`
	Status    string  `json:"status"`
}

// Result 是一次检索命中的商品。
type Result struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Filter 是检索后的元数据过滤条件，零值字段表示不限制。
type Filter struct {
	Status    string   `json:"status,omitempty"`
	Category  string   `json:"category,omitempty"`
	Brand     string   `json:"brand,omitempty"`
	Condition string   `json:"condition,omitempty"`
	MinPrice  *float64 `json:"min_price,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
}

// Index 是向量索引的公共接口。
type Index interface {
	Add(ctx context.Context, id string, vector []float32, meta Metadata) error
	Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error)
	// Delete 移除商品，不存在时返回 false
	Delete(ctx context.Context, id string) (bool, error)
	Len() int
}

// Price 返回指向 v 的指针，便于构造 Filter。
func Price(v float64) *float64 {
	return &v
}

// IsZero 判断过滤条件是否为空。
func (f *Filter) IsZero() bool {
	return f == nil || (f.Status == "" && f.Category == "" && f.Brand == "" &&
		f.Condition == "" && f.MinPrice == nil && f.MaxPrice == nil)
}

// Match 判断商品元数据是否满足过滤条件。nil 过滤条件匹配所有商品。
func (f *Filter) Match(m Metadata) bool {
	if f == nil {
		return true
	}
	if f.Status != "" && !strings.EqualFold(f.Status, m.Status) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, m.Category) {
		return false
	}
	if f.Brand != "" && !strings.EqualFold(f.Brand, m.Brand) {
		return false
	}
	if f.Condition != "" && !strings.EqualFold(f.Condition, m.Condition) {
		return false
	}
	if f.MinPrice != nil && m.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && m.Price > *f.MaxPrice {
		return false
	}
	return true
}

// Merge 返回 f 与 other 合并后的新过滤条件，other 中已设置的字段覆盖 f。
func (f Filter) Merge(other Filter) Filter {
	out := f.Clone()
	if other.Status != "" {
		out.Status = other.Status
	}
	if other.Category != "" {
		out.Category = other.Category
	}
	if other.Brand != "" {
		out.Brand = other.Brand
	}
	if other.Condition != "" {
		out.Condition = other.Condition
	}
	if other.MinPrice != nil {
		out.MinPrice = Price(*other.MinPrice)
	}
	if other.MaxPrice != nil {
		out.MaxPrice = Price(*other.MaxPrice)
	}
	return out
}

// Clone 深拷贝过滤条件。
func (f Filter) Clone() Filter {
	out := f
	if f.MinPrice != nil {
		out.MinPrice = Price(*f.MinPrice)
	}
	if f.MaxPrice != nil {
		out.MaxPrice = Price(*f.MaxPrice)
	}
	return out
}

// Normalize 返回 v 的 L2 归一化副本。
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, ErrZeroVector
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// clampScore 把余弦相似度截断到 [0,1]。
func clampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

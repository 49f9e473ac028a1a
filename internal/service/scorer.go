package service

import (
	"math"
	"sort"
	"strings"

	"myreprise-chatbot-go/internal/model"
)

// Scorer 计算商品与用户画像、查询实体的相关度，结果总在 [0,1] 内。
type Scorer struct {
	textWeight    float64
	profileWeight float64
}

// NewScorer 创建打分器，权重之和不为 1 时按比例归一化。
func NewScorer(textWeight, profileWeight float64) *Scorer {
	if !(textWeight >= 0) || math.IsInf(textWeight, 0) {
		textWeight = 0
	}
	if !(profileWeight >= 0) || math.IsInf(profileWeight, 0) {
		profileWeight = 0
	}
	sum := textWeight + profileWeight
	if sum == 0 {
		textWeight, profileWeight, sum = 0.3, 0.7, 1
	}
	return &Scorer{textWeight: textWeight / sum, profileWeight: profileWeight / sum}
}

// Weights 返回归一化后的权重。
func (s *Scorer) Weights() (text, profile float64) {
	return s.textWeight, s.profileWeight
}

// ProfileScore 根据画像计算个性化得分。
func (s *Scorer) ProfileScore(item model.RetrievedItem, profile *model.UserProfile) float64 {
	if profile == nil {
		return 0
	}
	score := 0.0
	if profile.PrefersCategory(item.Category) {
		score += 0.3
	}
	if profile.PrefersBrand(item.Brand) {
		score += 0.3
	}
	if item.Price > 0 {
		r := profile.PriceRange
		switch {
		case r.Contains(item.Price):
			score += 0.2
		case item.Price < r.Min:
			// 低于预算也可以接受
			score += 0.1
		default:
			score -= 0.1
		}
	}
	if len(profile.InteractionHistory) > 0 {
		score += 0.2
	}
	return clamp01(score)
}

// EntityScore 根据当前消息中提到的实体计算得分。
func (s *Scorer) EntityScore(item model.RetrievedItem, entities map[string]string) float64 {
	score := 0.0
	if containsFold(item.Brand, entities[model.EntityBrand]) {
		score += 0.3
	}
	if containsFold(item.Category, entities[model.EntityCategory]) {
		score += 0.3
	}
	if containsFold(item.Title, entities[model.EntityModel]) {
		score += 0.2
	}
	return clamp01(score)
}

// Score 计算综合得分。没有商品相关实体时只看画像得分。
func (s *Scorer) Score(item model.RetrievedItem, profile *model.UserProfile, entities map[string]string) float64 {
	p := s.ProfileScore(item, profile)
	if !hasItemEntities(entities) {
		return p
	}
	return clamp01(s.textWeight*s.EntityScore(item, entities) + s.profileWeight*p)
}

// Rank 按综合得分降序重排，得分相同时保留原有的相似度顺序。
func (s *Scorer) Rank(items []model.RetrievedItem, profile *model.UserProfile, entities map[string]string) []model.RetrievedItem {
	out := append([]model.RetrievedItem(nil), items...)
	for i := range out {
		out[i].Score = s.Score(out[i], profile, entities)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func hasItemEntities(entities map[string]string) bool {
	return entities[model.EntityBrand] != "" || entities[model.EntityCategory] != "" || entities[model.EntityModel] != ""
}

func containsFold(haystack, needle string) bool {
	if haystack == "" || needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

package model

import "myreprise-chatbot-go/pkg/vectorindex"

// RetrievedItem 是一次检索中命中的商品及其打分。
type RetrievedItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	Category   string  `json:"category,omitempty"`
	Brand      string  `json:"brand,omitempty"`
	Condition  string  `json:"condition,omitempty"`
	Status     string  `json:"status,omitempty"`
	Similarity float64 `json:"similarity"`
	// 个性化打分，未打分时等于 Similarity
	Score float64 `json:"score"`
}

// ItemFromResult 把索引命中转换为 RetrievedItem。
func ItemFromResult(r vectorindex.Result) RetrievedItem {
	return RetrievedItem{
		ID:         r.ID,
		Title:      r.Metadata.Title,
		Price:      r.Metadata.Price,
		Category:   r.Metadata.Category,
		Brand:      r.Metadata.Brand,
		Condition:  r.Metadata.Condition,
		Status:     r.Metadata.Status,
		Similarity: r.Score,
		Score:      r.Score,
	}
}

// Signal 提取学习用的商品特征。
func (i RetrievedItem) Signal() ItemSignal {
	return ItemSignal{ItemID: i.ID, Category: i.Category, Brand: i.Brand, Price: i.Price}
}

// RetrievalContext 是检索阶段交给回复组装的上下文。
type RetrievalContext struct {
	Items   []RetrievedItem    `json:"items"`
	Total   int                `json:"total"`
	Summary string             `json:"summary"`
	Filter  vectorindex.Filter `json:"filter"`
}

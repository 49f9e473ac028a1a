package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"myreprise-chatbot-go/pkg/log"
)

// esDocument 是写入 Elasticsearch 的商品向量文档。
type esDocument struct {
	ItemID    string    `json:"item_id"`
	Vector    []float32 `json:"vector"`
	Title     string    `json:"title"`
	Price     float64   `json:"price"`
	Category  string    `json:"category"`
	Brand     string    `json:"brand"`
	Condition string    `json:"condition"`
	Status    string    `json:"status"`
}

// ElasticIndex 使用 Elasticsearch 的 dense_vector 字段做 knn 检索。
// 文档以商品 ID 为主键，重复写入直接覆盖，不存在过期位置。
type ElasticIndex struct {
	client    *elasticsearch.Client
	indexName string
	dim       int
	count     atomic.Int64
}

// NewElasticIndex 创建一个基于 Elasticsearch 的索引。索引结构由 es.EnsureIndex 负责创建。
func NewElasticIndex(client *elasticsearch.Client, indexName string, dim int) *ElasticIndex {
	idx := &ElasticIndex{client: client, indexName: indexName, dim: dim}
	idx.count.Store(-1)
	return idx
}

// Add 归一化向量后写入文档。
func (e *ElasticIndex) Add(ctx context.Context, id string, vector []float32, meta Metadata) error {
	if id == "" {
		return ErrEmptyID
	}
	if e.dim > 0 && len(vector) != e.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), e.dim)
	}
	normalized, err := Normalize(vector)
	if err != nil {
		return err
	}
	doc := esDocument{
		ItemID:    id,
		Vector:    normalized,
		Title:     meta.Title,
		Price:     meta.Price,
		Category:  meta.Category,
		Brand:     meta.Brand,
		Condition: meta.Condition,
		Status:    meta.Status,
	}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal es document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      e.indexName,
		DocumentID: id,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ElasticIndex] 索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	e.count.Store(-1)
	return nil
}

// Delete 删除商品文档。
func (e *ElasticIndex) Delete(ctx context.Context, id string) (bool, error) {
	req := esapi.DeleteRequest{
		Index:      e.indexName,
		DocumentID: id,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return false, nil
	}
	if res.IsError() {
		log.Errorf("[ElasticIndex] 从 Elasticsearch 删除文档出错: %s", res.String())
		return false, errors.New("failed to delete document")
	}
	e.count.Store(-1)
	return true, nil
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string     `json:"_id"`
			Score  float64    `json:"_score"`
			Source esDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 执行 knn 检索，filter 与内存实现一致地在 top-k 之后应用。
func (e *ElasticIndex) Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	if e.dim > 0 && len(query) != e.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), e.dim)
	}
	q, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   q,
			"k":              k,
			"num_candidates": k * 10,
		},
		"size":    k,
		"_source": []string{"item_id", "title", "price", "category", "brand", "condition", "status"},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return []Result{}, nil
	}
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[ElasticIndex] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		src := hit.Source
		meta := Metadata{
			Title:     src.Title,
			Price:     src.Price,
			Category:  src.Category,
			Brand:     src.Brand,
			Condition: src.Condition,
			Status:    src.Status,
		}
		if !filter.Match(meta) {
			continue
		}
		id := src.ItemID
		if id == "" {
			id = hit.ID
		}
		// cosine 相似度在 ES 中被映射为 (1+cos)/2
		results = append(results, Result{ID: id, Score: clampScore(2*hit.Score - 1), Metadata: meta})
	}
	return results, nil
}

// Len 返回索引中的文档数，查询失败时返回 0。
func (e *ElasticIndex) Len() int {
	if c := e.count.Load(); c >= 0 {
		return int(c)
	}
	res, err := e.client.Count(e.client.Count.WithIndex(e.indexName))
	if err != nil {
		log.Warnf("[ElasticIndex] 统计文档数失败: %v", err)
		return 0
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0
	}
	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0
	}
	e.count.Store(parsed.Count)
	return int(parsed.Count)
}

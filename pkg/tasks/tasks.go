// Package tasks 定义了通过 Kafka 传递的商品索引任务。
package tasks

const (
	// ActionUpsert 新增或更新商品的向量
	ActionUpsert = "upsert"
	// ActionDelete 商品下架，从检索结果中排除
	ActionDelete = "delete"
)

// ItemIndexTask 表示一次商品索引任务。
type ItemIndexTask struct {
	ItemID uint   `json:"item_id"`
	Action string `json:"action"`
}

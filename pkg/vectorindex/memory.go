package vectorindex

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"myreprise-chatbot-go/pkg/log"
)

type entry struct {
	id     string
	vector []float32
	meta   Metadata
	// 覆盖该条目的新位置，-1 表示仍是最新
	supersededBy atomic.Int64
}

// view 是一次发布的只读快照，entries 的前 len 个元素之后不再被修改
type view struct {
	entries []*entry
}

// MemoryIndex 是进程内的扁平内积索引。
// 写操作串行执行并通过 atomic.Pointer 发布新快照，读操作无锁。
type MemoryIndex struct {
	mu   sync.Mutex
	dim  int
	byID map[string]int
	cur  atomic.Pointer[view]
}

// NewMemoryIndex 创建一个维度为 dim 的内存索引，dim <= 0 时以第一次写入的向量维度为准。
func NewMemoryIndex(dim int) *MemoryIndex {
	idx := &MemoryIndex{dim: dim, byID: make(map[string]int)}
	idx.cur.Store(&view{})
	return idx
}

// Dimension 返回索引维度，尚未确定时返回 0。
func (m *MemoryIndex) Dimension() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dim
}

// Add 把商品向量追加到索引。同一 ID 再次添加时旧位置变为过期。
func (m *MemoryIndex) Add(_ context.Context, id string, vector []float32, meta Metadata) error {
	if id == "" {
		return ErrEmptyID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim > 0 && len(vector) != m.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), m.dim)
	}
	normalized, err := Normalize(vector)
	if err != nil {
		return err
	}
	if m.dim <= 0 {
		m.dim = len(vector)
	}

	old := m.cur.Load()
	pos := len(old.entries)
	e := &entry{id: id, vector: normalized, meta: meta}
	e.supersededBy.Store(-1)
	entries := append(old.entries, e)

	if prev, ok := m.byID[id]; ok {
		entries[prev].supersededBy.Store(int64(pos))
	}
	m.byID[id] = pos
	m.cur.Store(&view{entries: entries})
	return nil
}

// Search 返回与 query 最相似的 k 个商品，过期位置不参与排序，filter 在取 top-k 之后应用，
// 因此结果可能少于 k 个。
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	v := m.cur.Load()
	n := len(v.entries)
	if n == 0 {
		return []Result{}, nil
	}
	dim := len(v.entries[0].vector)
	if len(query) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), dim)
	}
	q, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	h := make(minHeap, 0, k+1)
	for pos := 0; pos < n; pos++ {
		if pos%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e := v.entries[pos]
		if sb := e.supersededBy.Load(); sb >= 0 && sb < int64(n) {
			continue
		}
		c := candidate{pos: pos, score: clampScore(dot(q, e.vector))}
		if len(h) < k {
			heap.Push(&h, c)
		} else if c.better(h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	ranked := make([]candidate, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		ranked[i] = heap.Pop(&h).(candidate)
	}

	results := make([]Result, 0, len(ranked))
	for _, c := range ranked {
		e := v.entries[c.pos]
		if !filter.Match(e.meta) {
			continue
		}
		results = append(results, Result{ID: e.id, Score: c.score, Metadata: e.meta})
	}
	return results, nil
}

// Delete 让 ID 对应的条目不再出现在检索结果中，空间在 Compact 时回收。
func (m *MemoryIndex) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	// 0 小于任何非空快照的长度，对所有读者都视为过期
	m.cur.Load().entries[pos].supersededBy.Store(0)
	delete(m.byID, id)
	return true, nil
}

// Get 返回 ID 对应的最新元数据。
func (m *MemoryIndex) Get(id string) (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.byID[id]
	if !ok {
		return Metadata{}, false
	}
	// byID 与 cur 只在持锁时一起更新
	return m.cur.Load().entries[pos].meta, true
}

// Len 返回不同商品 ID 的数量。
func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Positions 返回索引中的位置总数，包含过期位置。
func (m *MemoryIndex) Positions() int {
	return len(m.cur.Load().entries)
}

// Compact 丢弃过期位置重建索引，返回被移除的位置数。
func (m *MemoryIndex) Compact() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.cur.Load()
	live := make([]*entry, 0, len(m.byID))
	byID := make(map[string]int, len(m.byID))
	for _, e := range old.entries {
		if e.supersededBy.Load() >= 0 {
			continue
		}
		ne := &entry{id: e.id, vector: e.vector, meta: e.meta}
		ne.supersededBy.Store(-1)
		byID[e.id] = len(live)
		live = append(live, ne)
	}
	m.byID = byID
	m.cur.Store(&view{entries: live})
	removed := len(old.entries) - len(live)
	if removed > 0 {
		log.Infof("[VectorIndex] 压缩完成, 移除过期位置: %d, 剩余: %d", removed, len(live))
	}
	return removed
}

type snapshotItem struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"vector"`
	Metadata Metadata  `json:"metadata"`
}

type snapshotHeader struct {
	Version   int `json:"version"`
	Dimension int `json:"dimension"`
	Count     int `json:"count"`
}

// WriteSnapshot 把所有有效条目写入 w，格式为一行头部加每行一个条目的 JSON。
func (m *MemoryIndex) WriteSnapshot(w io.Writer) (int, error) {
	m.mu.Lock()
	v := m.cur.Load()
	dim := m.dim
	count := len(m.byID)
	m.mu.Unlock()

	enc := json.NewEncoder(w)
	if err := enc.Encode(snapshotHeader{Version: 1, Dimension: dim, Count: count}); err != nil {
		return 0, fmt.Errorf("写入快照头失败: %w", err)
	}
	written := 0
	n := int64(len(v.entries))
	for _, e := range v.entries {
		if sb := e.supersededBy.Load(); sb >= 0 && sb < n {
			continue
		}
		if err := enc.Encode(snapshotItem{ID: e.id, Vector: e.vector, Metadata: e.meta}); err != nil {
			return written, fmt.Errorf("写入快照条目失败: %w", err)
		}
		written++
	}
	return written, nil
}

// ReadSnapshot 把 r 中的快照合并进索引，返回新加入的商品数。
// 索引中已存在的 ID 保留当前条目，快照不会覆盖加载期间写入的更新。
func (m *MemoryIndex) ReadSnapshot(r io.Reader) (int, error) {
	dec := json.NewDecoder(r)
	var header snapshotHeader
	if err := dec.Decode(&header); err != nil {
		return 0, fmt.Errorf("读取快照头失败: %w", err)
	}
	if header.Version != 1 {
		return 0, fmt.Errorf("不支持的快照版本: %d", header.Version)
	}

	items := make([]*entry, 0, header.Count)
	for {
		var item snapshotItem
		if err := dec.Decode(&item); err == io.EOF {
			break
		} else if err != nil {
			return 0, fmt.Errorf("读取快照条目失败: %w", err)
		}
		if item.ID == "" {
			return 0, fmt.Errorf("快照条目: %w", ErrEmptyID)
		}
		if header.Dimension > 0 && len(item.Vector) != header.Dimension {
			return 0, fmt.Errorf("%w: item %s", ErrDimensionMismatch, item.ID)
		}
		vec, err := Normalize(item.Vector)
		if err != nil {
			return 0, fmt.Errorf("快照条目 %s: %w", item.ID, err)
		}
		items = append(items, &entry{id: item.ID, vector: vec, meta: item.Metadata})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim > 0 && header.Dimension > 0 && m.dim != header.Dimension {
		return 0, fmt.Errorf("%w: snapshot %d, index %d", ErrDimensionMismatch, header.Dimension, m.dim)
	}
	if m.dim <= 0 {
		m.dim = header.Dimension
	}

	old := m.cur.Load()
	entries := old.entries
	loaded := make(map[string]int, len(items))
	for _, e := range items {
		if _, live := m.byID[e.id]; live {
			if _, fromSnapshot := loaded[e.id]; !fromSnapshot {
				continue
			}
		}
		pos := len(entries)
		e.supersededBy.Store(-1)
		if prev, ok := loaded[e.id]; ok {
			entries[prev].supersededBy.Store(int64(pos))
		}
		loaded[e.id] = pos
		m.byID[e.id] = pos
		entries = append(entries, e)
	}
	m.cur.Store(&view{entries: entries})
	return len(loaded), nil
}

type candidate struct {
	pos   int
	score float64
}

// better 分数高者优先，分数相同时先插入者优先
func (c candidate) better(o candidate) bool {
	if c.score != o.score {
		return c.score > o.score
	}
	return c.pos < o.pos
}

// minHeap 堆顶是当前 top-k 中最差的候选
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[j].better(h[i]) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

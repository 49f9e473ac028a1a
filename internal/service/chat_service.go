// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"myreprise-chatbot-go/internal/intent"
	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/pkg/embedding"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/metrics"
	"myreprise-chatbot-go/pkg/prefsource"
	"myreprise-chatbot-go/pkg/vectorindex"
)

// 价格档位对应的检索价格边界
const (
	lowPriceCeiling  = 500
	highPriceFloor   = 1000
	defaultTopK      = 5
	defaultEmbedWait = 8 * time.Second
	defaultTurnWait  = 15 * time.Second
)

// Learner 接收异步学习任务，不允许阻塞调用方。
type Learner interface {
	Submit(task LearningTask) bool
}

// ChatService 定义了对话流水线及其管理操作。
type ChatService interface {
	ProcessMessage(ctx context.Context, req model.ChatRequest) *model.ChatReply
	CreateSession(ctx context.Context, userID string) (string, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ClearSession(ctx context.Context, sessionID string) error
	EndSession(ctx context.Context, sessionID string) error
	ListSessions() []model.SessionSummary
	GetPreferences(ctx context.Context, userID string) *model.UserProfile
	UpdatePreferences(ctx context.Context, userID string, update model.PreferencesUpdate) (*model.UserProfile, error)
	RefreshPreferences(ctx context.Context, userID string) (*model.UserProfile, error)
	Health(ctx context.Context) HealthStatus
	Stats() ChatStats
}

// ChatDeps 是对话流水线依赖的组件。Learner 与 Source 可以为 nil。
type ChatDeps struct {
	Sessions   SessionService
	Classifier intent.Classifier
	Embedder   embedding.Client
	Index      vectorindex.Index
	Profiles   ProfileService
	Scorer     *Scorer
	Composer   *ResponseComposer
	Learner    Learner
	Source     prefsource.Source
}

// ChatOptions 对话流水线的可选参数。
type ChatOptions struct {
	TopK            int
	EmbedTimeout    time.Duration
	PipelineTimeout time.Duration
	// ContextWindow 每轮最多保留的商品数
	ContextWindow int
	Now           func() time.Time
}

// HealthStatus 是各组件的健康状态。
type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

// ChatStats 是对话服务的运行统计。
type ChatStats struct {
	Sessions      model.SessionStats `json:"sessions"`
	IndexedItems  int                `json:"indexed_items"`
	Turns         int64              `json:"turns"`
	DegradedTurns int64              `json:"degraded_turns"`
	IntentCounts  map[string]int64   `json:"intent_counts"`
}

type chatService struct {
	deps ChatDeps
	opts ChatOptions

	turns    atomic.Int64
	degraded atomic.Int64
	// 意图集合是封闭的，map 构造后只读
	intentCounts map[model.Intent]*atomic.Int64
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(deps ChatDeps, opts ChatOptions) ChatService {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = defaultEmbedWait
	}
	if opts.PipelineTimeout <= 0 {
		opts.PipelineTimeout = defaultTurnWait
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = opts.TopK
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Scorer == nil {
		deps.Scorer = NewScorer(0, 0)
	}
	if deps.Composer == nil {
		deps.Composer = NewResponseComposer(nil)
	}
	counts := make(map[model.Intent]*atomic.Int64, len(model.Intents))
	for _, in := range model.Intents {
		counts[in] = &atomic.Int64{}
	}
	return &chatService{deps: deps, opts: opts, intentCounts: counts}
}

// turn 是一轮对话在流水线各步骤之间传递的状态。
type turn struct {
	text      string
	userID    string
	sessionID string
	profile   *model.UserProfile
	class     model.Classification
	vector    []float32
	filter    vectorindex.Filter
	rc        model.RetrievalContext
	reply     model.Reply
	degraded  bool
}

func (t *turn) degrade(stage string) {
	t.degraded = true
	metrics.DegradedStepsTotal.WithLabelValues(stage).Inc()
}

// ProcessMessage 执行一轮完整的对话流水线。任何步骤失败都回退到默认值，
// 不会把错误返回给调用方。
func (s *chatService) ProcessMessage(ctx context.Context, req model.ChatRequest) (out *model.ChatReply) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.PipelineTimeout)
	defer cancel()

	t := &turn{
		text:      strings.TrimSpace(req.Message),
		userID:    strings.TrimSpace(req.UserID),
		sessionID: req.SessionID,
		class:     model.Classification{Intent: model.IntentGeneralQuestion, Entities: map[string]string{}},
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[ChatService] 对话流水线发生 panic: session=%s, %v", t.sessionID, r)
			t.degrade("panic")
			t.reply = s.deps.Composer.Apology()
			t.rc = model.RetrievalContext{}
			out = s.buildReply(t)
		}
		s.turns.Add(1)
		if out.Degraded {
			s.degraded.Add(1)
		}
		if c, ok := s.intentCounts[out.Intent]; ok {
			c.Add(1)
		}
		metrics.ChatTurnsTotal.WithLabelValues(string(out.Intent)).Inc()
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	s.receive(ctx, t)
	s.classify(t)
	s.embedQuery(ctx, t)
	s.retrieve(ctx, t)
	s.rank(t)
	s.summarize(t)
	t.reply = s.deps.Composer.Compose(t.class.Intent, t.rc, t.class.Entities, t.profile)
	s.persist(ctx, t)

	log.Infof("[ChatService] 对话处理完成: session=%s, intent=%s, items=%d, degraded=%t",
		t.sessionID, t.class.Intent, len(t.rc.Items), t.degraded)
	return s.buildReply(t)
}

// receive 解析会话与用户画像。未知、过期或属于其他用户的会话 ID 会被替换为新会话。
func (s *chatService) receive(ctx context.Context, t *turn) {
	if t.sessionID != "" {
		session, ok := s.deps.Sessions.Get(ctx, t.sessionID)
		switch {
		case !ok:
			log.Infof("[ChatService] 会话不存在或已过期, 创建新会话: %s", t.sessionID)
			t.sessionID = ""
		case session.UserID != "" && session.UserID != t.userID:
			log.Warnf("[ChatService] 会话属于其他用户, 创建新会话: session=%s, user=%q", t.sessionID, t.userID)
			t.sessionID = ""
		}
	}
	if t.sessionID == "" {
		id, err := s.deps.Sessions.Create(ctx, t.userID, nil)
		if err != nil {
			log.Errorf("[ChatService] 创建会话失败, error: %v", err)
			t.degrade("session")
		}
		t.sessionID = id
	}
	if t.userID != "" && s.deps.Profiles != nil {
		t.profile = s.deps.Profiles.GetProfile(ctx, t.userID)
	}
}

func (s *chatService) classify(t *turn) {
	t.class = s.deps.Classifier.Classify(t.text)
	if t.class.Entities == nil {
		t.class.Entities = map[string]string{}
	}
	if t.class.Err != "" {
		t.degrade("classify")
	}
}

// embedQuery 把画像偏好拼接到查询文本后再生成向量。
func (s *chatService) embedQuery(ctx context.Context, t *turn) {
	if t.text == "" || s.deps.Embedder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()
	vector, err := s.deps.Embedder.CreateEmbedding(ctx, enrichQuery(t.text, t.profile))
	if err != nil {
		log.Warnf("[ChatService] 生成查询向量失败, 跳过检索: %v", err)
		t.degrade("embed")
		return
	}
	t.vector = vector
}

func (s *chatService) retrieve(ctx context.Context, t *turn) {
	t.filter = buildFilter(t.class.Intent, t.class.Entities, t.profile)
	if t.vector == nil || s.deps.Index == nil {
		return
	}
	var filter *vectorindex.Filter
	if !t.filter.IsZero() {
		f := t.filter.Clone()
		filter = &f
	}
	results, err := s.deps.Index.Search(ctx, t.vector, s.opts.TopK, filter)
	if err != nil {
		log.Warnf("[ChatService] 向量检索失败: %v", err)
		t.degrade("retrieve")
		return
	}
	items := make([]model.RetrievedItem, 0, len(results))
	for _, r := range results {
		items = append(items, model.ItemFromResult(r))
	}
	t.rc.Items = items
}

// rank 有用户时按个性化得分重排。
func (s *chatService) rank(t *turn) {
	if t.userID != "" && len(t.rc.Items) > 0 {
		t.rc.Items = s.deps.Scorer.Rank(t.rc.Items, t.profile, t.class.Entities)
	}
	if len(t.rc.Items) > s.opts.ContextWindow {
		t.rc.Items = t.rc.Items[:s.opts.ContextWindow]
	}
}

func (s *chatService) summarize(t *turn) {
	if t.rc.Items == nil {
		t.rc.Items = []model.RetrievedItem{}
	}
	t.rc.Total = len(t.rc.Items)
	t.rc.Filter = t.filter.Clone()
	t.rc.Summary = s.deps.Composer.Summarize(t.class.Intent, t.rc.Items)
}

// persist 写入本轮消息与上下文，并投递学习任务。
func (s *chatService) persist(ctx context.Context, t *turn) {
	if t.sessionID != "" {
		now := s.opts.Now()
		ok := s.deps.Sessions.AppendMessage(ctx, t.sessionID, model.Message{
			Role: model.RoleUser, Content: t.text, Timestamp: now, Intent: t.class.Intent,
		})
		ok = ok && s.deps.Sessions.AppendMessage(ctx, t.sessionID, model.Message{
			Role: model.RoleBot, Content: t.reply.Text, Timestamp: now, Intent: t.class.Intent, Type: t.reply.Type,
		})

		ids := make([]string, len(t.rc.Items))
		for i, item := range t.rc.Items {
			ids[i] = item.ID
		}
		current := t.class.Intent
		filter := t.filter.Clone()
		ok = ok && s.deps.Sessions.Update(ctx, t.sessionID, model.SessionUpdate{
			Context: &model.ContextUpdate{
				CurrentIntent: &current,
				Entities:      t.class.Entities,
				ActiveFilters: &filter,
				CurrentItems:  ids,
			},
		})
		if !ok {
			log.Warnf("[ChatService] 会话在写入前已失效: %s", t.sessionID)
			t.degrade("persist")
		}
	}

	if t.userID == "" || s.deps.Learner == nil {
		return
	}
	signals := learningSignals(t.rc.Items, t.class.Entities, s.opts.Now())
	if signals.Empty() {
		return
	}
	s.deps.Learner.Submit(LearningTask{UserID: t.userID, Signals: signals})
}

func (s *chatService) buildReply(t *turn) *model.ChatReply {
	entities := t.class.Entities
	if entities == nil {
		entities = map[string]string{}
	}
	items := t.rc.Items
	if items == nil {
		items = []model.RetrievedItem{}
	}
	return &model.ChatReply{
		Response:    t.reply.Text,
		SessionID:   t.sessionID,
		Intent:      t.class.Intent,
		Confidence:  t.class.Confidence,
		Entities:    entities,
		Type:        t.reply.Type,
		Suggestions: t.reply.Suggestions,
		Actions:     t.reply.Actions,
		Items:       items,
		Timestamp:   s.opts.Now(),
		Degraded:    t.degraded,
	}
}

// enrichQuery 在查询后追加画像中的类目、品牌和预算。
func enrichQuery(text string, profile *model.UserProfile) string {
	if profile == nil || profile.IsDefault {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	if len(profile.PreferredCategories) > 0 {
		b.WriteString(" Préférences catégories: ")
		b.WriteString(strings.Join(profile.PreferredCategories, ", "))
	}
	if len(profile.PreferredBrands) > 0 {
		b.WriteString(" Préférences marques: ")
		b.WriteString(strings.Join(profile.PreferredBrands, ", "))
	}
	r := profile.PriceRange
	if r.Max > 0 {
		fmt.Fprintf(&b, " Budget: %s-%s€", formatPrice(r.Min), formatPrice(r.Max))
	}
	return b.String()
}

// buildFilter 根据意图、实体和画像构造检索过滤条件。
// 实体中的价格档位优先于画像的价格区间。
func buildFilter(in model.Intent, entities map[string]string, profile *model.UserProfile) vectorindex.Filter {
	var f vectorindex.Filter
	if in == model.IntentProductSearch {
		f.Status = vectorindex.StatusAvailable
	}
	if profile != nil && !profile.IsDefault {
		if profile.PriceRange.Min > 0 {
			f.MinPrice = vectorindex.Price(profile.PriceRange.Min)
		}
		if profile.PriceRange.Max > 0 {
			f.MaxPrice = vectorindex.Price(profile.PriceRange.Max)
		}
	}
	switch entities[model.EntityPriceRange] {
	case model.PriceRangeLow:
		f.MaxPrice = vectorindex.Price(lowPriceCeiling)
		if f.MinPrice != nil && *f.MinPrice > lowPriceCeiling {
			f.MinPrice = nil
		}
	case model.PriceRangeHigh:
		f.MinPrice = vectorindex.Price(highPriceFloor)
		if f.MaxPrice != nil && *f.MaxPrice < highPriceFloor {
			f.MaxPrice = nil
		}
	}
	return f
}

// learningSignals 把本轮展示的商品和提到的金额转换为学习信号。
func learningSignals(items []model.RetrievedItem, entities map[string]string, now time.Time) model.InteractionSignals {
	signals := model.InteractionSignals{Type: "chat", Timestamp: now}
	for _, item := range items {
		signals.ViewedItems = append(signals.ViewedItems, item.Signal())
	}
	if raw := entities[model.EntityAmount]; raw != "" {
		if amount, err := strconv.ParseFloat(raw, 64); err == nil && amount > 0 {
			signals.Prices = append(signals.Prices, amount)
		}
	}
	return signals
}

// CreateSession 显式创建会话。
func (s *chatService) CreateSession(ctx context.Context, userID string) (string, error) {
	id, err := s.deps.Sessions.Create(ctx, strings.TrimSpace(userID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// GetSession 返回会话副本，不存在时返回 ErrSessionNotFound。
func (s *chatService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, ok := s.deps.Sessions.Get(ctx, sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ClearSession 清空会话上下文。
func (s *chatService) ClearSession(ctx context.Context, sessionID string) error {
	if !s.deps.Sessions.ClearContext(ctx, sessionID) {
		return ErrSessionNotFound
	}
	return nil
}

// EndSession 结束会话。
func (s *chatService) EndSession(ctx context.Context, sessionID string) error {
	if !s.deps.Sessions.End(ctx, sessionID) {
		return ErrSessionNotFound
	}
	return nil
}

func (s *chatService) ListSessions() []model.SessionSummary {
	return s.deps.Sessions.List()
}

// GetPreferences 返回用户画像，偏好服务不可用时返回默认画像。
func (s *chatService) GetPreferences(ctx context.Context, userID string) *model.UserProfile {
	return s.deps.Profiles.GetProfile(ctx, userID)
}

func (s *chatService) UpdatePreferences(ctx context.Context, userID string, update model.PreferencesUpdate) (*model.UserProfile, error) {
	return s.deps.Profiles.UpdatePreferences(ctx, userID, update)
}

func (s *chatService) RefreshPreferences(ctx context.Context, userID string) (*model.UserProfile, error) {
	return s.deps.Profiles.Refresh(ctx, userID)
}

// Health 检查各组件状态。偏好服务不可用只会让整体状态降级。
func (s *chatService) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: "healthy", Components: map[string]string{}, Timestamp: s.opts.Now()}

	status.Components["sessions"] = "ok"
	if s.deps.Index == nil {
		status.Components["vector_index"] = "disabled"
		status.Status = "degraded"
	} else {
		status.Components["vector_index"] = fmt.Sprintf("ok (%d items)", s.deps.Index.Len())
	}
	if s.deps.Embedder == nil {
		status.Components["embedding"] = "disabled"
		status.Status = "degraded"
	} else {
		status.Components["embedding"] = "configured"
	}

	switch {
	case s.deps.Source == nil:
		status.Components["preference_source"] = "disabled"
	case s.deps.Source.Health(ctx):
		status.Components["preference_source"] = "ok"
	default:
		status.Components["preference_source"] = "unavailable"
		status.Status = "degraded"
	}
	return status
}

// Stats 返回会话与对话轮次的统计。
func (s *chatService) Stats() ChatStats {
	stats := ChatStats{
		Sessions:      s.deps.Sessions.Stats(),
		Turns:         s.turns.Load(),
		DegradedTurns: s.degraded.Load(),
		IntentCounts:  make(map[string]int64, len(s.intentCounts)),
	}
	if s.deps.Index != nil {
		stats.IndexedItems = s.deps.Index.Len()
	}
	for in, c := range s.intentCounts {
		stats.IntentCounts[string(in)] = c.Load()
	}
	return stats
}


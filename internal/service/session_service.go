// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/internal/repository"
	"myreprise-chatbot-go/pkg/keylock"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/metrics"
)

// ErrSessionNotFound 会话不存在或已过期。
var ErrSessionNotFound = errors.New("session not found")

const (
	// DefaultSessionTTL 会话无活动的最长时间
	DefaultSessionTTL = time.Hour
	// DefaultHistorySize 会话历史保留的消息数
	DefaultHistorySize = 10
)

// SessionService 定义了会话存储的操作。
type SessionService interface {
	Create(ctx context.Context, userID string, initial *model.ContextUpdate) (string, error)
	Get(ctx context.Context, sessionID string) (*model.Session, bool)
	Update(ctx context.Context, sessionID string, update model.SessionUpdate) bool
	AppendMessage(ctx context.Context, sessionID string, msg model.Message) bool
	ClearContext(ctx context.Context, sessionID string) bool
	End(ctx context.Context, sessionID string) bool
	ExpireStale(ctx context.Context) int
	List() []model.SessionSummary
	Stats() model.SessionStats
	StartSweeper(ctx context.Context, interval time.Duration)
}

// SessionOptions 会话存储的可选参数。
type SessionOptions struct {
	TTL         time.Duration
	HistorySize int
	// RemoteTimeout 单次远端存储操作的超时
	RemoteTimeout time.Duration
	Now           func() time.Time
}

type sessionService struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	locks    *keylock.KeyLock
	repo     repository.SessionRepository

	ttl           time.Duration
	historySize   int
	remoteTimeout time.Duration
	now           func() time.Time
}

// NewSessionService 创建两级会话存储。repo 为 nil 时只使用进程内存储。
func NewSessionService(repo repository.SessionRepository, opts SessionOptions) SessionService {
	s := &sessionService{
		sessions:      make(map[string]*model.Session),
		locks:         keylock.New(),
		repo:          repo,
		ttl:           opts.TTL,
		historySize:   opts.HistorySize,
		remoteTimeout: opts.RemoteTimeout,
		now:           opts.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}
	if s.historySize <= 0 {
		s.historySize = DefaultHistorySize
	}
	if s.remoteTimeout <= 0 {
		s.remoteTimeout = 2 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create 创建新会话并返回会话 ID。
func (s *sessionService) Create(ctx context.Context, userID string, initial *model.ContextUpdate) (string, error) {
	id := uuid.NewString()
	session := model.NewSession(id, userID, s.now())
	if initial != nil {
		session.Apply(model.SessionUpdate{Context: initial})
	}

	unlock := s.locks.Lock(id)
	defer unlock()
	s.store(ctx, session)
	log.Infof("[SessionService] 创建会话: %s, user: %s", id, userID)
	return id, nil
}

// Get 返回会话的副本，不存在或过期时返回 false。
func (s *sessionService) Get(ctx context.Context, sessionID string) (*model.Session, bool) {
	if sessionID == "" {
		return nil, false
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session := s.load(ctx, sessionID)
	if session == nil {
		return nil, false
	}
	return session.Clone(), true
}

// Update 深度合并更新会话上下文，并刷新最后活动时间。
func (s *sessionService) Update(ctx context.Context, sessionID string, update model.SessionUpdate) bool {
	return s.mutate(ctx, sessionID, func(session *model.Session) {
		session.Apply(update)
	})
}

// AppendMessage 追加一条消息，超过容量时丢弃最旧的消息。
func (s *sessionService) AppendMessage(ctx context.Context, sessionID string, msg model.Message) bool {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	return s.mutate(ctx, sessionID, func(session *model.Session) {
		history := append(session.Context.History, msg)
		if over := len(history) - s.historySize; over > 0 {
			history = append([]model.Message(nil), history[over:]...)
		}
		session.Context.History = history
		session.Metadata.MessageCount++
	})
}

// ClearContext 清空会话的对话上下文。
func (s *sessionService) ClearContext(ctx context.Context, sessionID string) bool {
	return s.mutate(ctx, sessionID, func(session *model.Session) {
		session.ResetContext()
	})
}

func (s *sessionService) mutate(ctx context.Context, sessionID string, fn func(*model.Session)) bool {
	if sessionID == "" {
		return false
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	current := s.load(ctx, sessionID)
	if current == nil {
		return false
	}
	// 本地存储中的对象只读，修改副本后整体替换
	session := current.Clone()
	fn(session)
	session.Touch(s.now())
	s.store(ctx, session)
	return true
}

// End 删除会话。
func (s *sessionService) End(ctx context.Context, sessionID string) bool {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	s.mu.Lock()
	_, existed := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if s.repo != nil {
		rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
		defer cancel()
		if err := s.repo.Delete(rctx, sessionID); err != nil {
			log.Warnf("[SessionService] 删除远端会话失败: %s, error: %v", sessionID, err)
		}
	}
	s.refreshGauge()
	if existed {
		log.Infof("[SessionService] 结束会话: %s", sessionID)
	}
	return existed
}

// ExpireStale 删除所有超过 TTL 未活动的本地会话，返回删除数量。
func (s *sessionService) ExpireStale(ctx context.Context) int {
	now := s.now()
	s.mu.RLock()
	var candidates []string
	for id, session := range s.sessions {
		if session.Stale(now, s.ttl) {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	expired := 0
	for _, id := range candidates {
		unlock := s.locks.Lock(id)
		s.mu.Lock()
		// 加锁后再次确认，期间可能有新的活动
		if session, ok := s.sessions[id]; ok && session.Stale(s.now(), s.ttl) {
			delete(s.sessions, id)
			expired++
		}
		s.mu.Unlock()
		unlock()
	}

	if expired > 0 {
		metrics.ExpiredSessionsTotal.Add(float64(expired))
		log.Infof("[SessionService] 清理过期会话 %d 个", expired)
	}
	s.refreshGauge()
	return expired
}

// List 返回所有未过期的本地会话摘要。
func (s *sessionService) List() []model.SessionSummary {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SessionSummary, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.Stale(now, s.ttl) {
			continue
		}
		out = append(out, model.SessionSummary{
			ID:           session.ID,
			UserID:       session.UserID,
			MessageCount: session.Metadata.MessageCount,
			LastActivity: model.LocalTime(session.LastActivity),
		})
	}
	return out
}

// Stats 统计本地未过期会话。
func (s *sessionService) Stats() model.SessionStats {
	var stats model.SessionStats
	for _, summary := range s.List() {
		stats.ActiveSessions++
		stats.TotalMessages += summary.MessageCount
	}
	if stats.ActiveSessions > 0 {
		stats.AverageMessages = float64(stats.TotalMessages) / float64(stats.ActiveSessions)
	}
	return stats
}

// StartSweeper 在后台定期清理过期会话，直到 ctx 被取消。
func (s *sessionService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ExpireStale(ctx)
			}
		}
	}()
}

// load 在持有会话锁的前提下读取会话，先查本地再查远端。
// 返回的是本地存储中的对象，调用方不能修改。
func (s *sessionService) load(ctx context.Context, sessionID string) *model.Session {
	now := s.now()
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok && !session.Stale(now, s.ttl) {
		return session
	}
	if s.repo == nil {
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()
	remote, err := s.repo.Get(rctx, sessionID)
	if err != nil {
		log.Warnf("[SessionService] 读取远端会话失败, 仅使用本地存储: %s, error: %v", sessionID, err)
		return nil
	}
	if remote == nil || remote.Stale(now, s.ttl) {
		return nil
	}
	if ok && remote.LastActivity.Before(session.LastActivity) {
		return nil
	}
	s.normalize(remote)

	s.mu.Lock()
	s.sessions[sessionID] = remote
	s.mu.Unlock()
	s.refreshGauge()
	return remote
}

// store 在持有会话锁的前提下写入两级存储。
func (s *sessionService) store(ctx context.Context, session *model.Session) {
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	s.refreshGauge()

	if s.repo == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()
	if err := s.repo.Save(rctx, session, s.ttl); err != nil {
		log.Warnf("[SessionService] 写入远端会话失败, 仅使用本地存储: %s, error: %v", session.ID, err)
	}
}

func (s *sessionService) refreshGauge() {
	s.mu.RLock()
	n := len(s.sessions)
	s.mu.RUnlock()
	metrics.ActiveSessions.Set(float64(n))
}

// normalize 修正从远端读取的会话中缺失的字段。
func (s *sessionService) normalize(session *model.Session) {
	if session.Context.Entities == nil {
		session.Context.Entities = map[string]string{}
	}
	if session.Context.History == nil {
		session.Context.History = []model.Message{}
	}
	if session.Context.CurrentItems == nil {
		session.Context.CurrentItems = []string{}
	}
	if over := len(session.Context.History) - s.historySize; over > 0 {
		session.Context.History = session.Context.History[over:]
	}
}

package model

import (
	"time"

	"myreprise-chatbot-go/pkg/vectorindex"
)

// Role 是消息发送方。
type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleSystem Role = "system"
)

// Message 是会话历史中的一条消息，追加后不再修改。
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Intent    Intent    `json:"intent,omitempty"`
	Type      string    `json:"type,omitempty"`
}

// SessionContext 是会话中跨轮次保留的对话状态。
type SessionContext struct {
	CurrentIntent Intent             `json:"current_intent,omitempty"`
	Entities      map[string]string  `json:"entities"`
	History       []Message          `json:"conversation_history"`
	ActiveFilters vectorindex.Filter `json:"active_filters"`
	// 上一轮展示给用户的商品 ID
	CurrentItems []string `json:"current_items"`
}

// SessionMetadata 会话元信息。
type SessionMetadata struct {
	Language          string `json:"language"`
	ConversationStyle string `json:"conversation_style"`
	MessageCount      int    `json:"message_count"`
}

// Session 是一个有 TTL 的对话会话。
type Session struct {
	ID           string          `json:"session_id"`
	UserID       string          `json:"user_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActivity time.Time       `json:"last_activity"`
	Context      SessionContext  `json:"context"`
	Metadata     SessionMetadata `json:"metadata"`
}

// NewSession 创建一个空会话。
func NewSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:           id,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		Context: SessionContext{
			Entities:     map[string]string{},
			History:      []Message{},
			CurrentItems: []string{},
		},
		Metadata: SessionMetadata{
			Language:          "fr",
			ConversationStyle: "casual",
		},
	}
}

// Stale 判断会话在 now 时刻是否已超过 ttl 未活动。
func (s *Session) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivity) >= ttl
}

// Touch 刷新最后活动时间，保证单调不减。
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// Clone 返回会话的深拷贝。
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Context.Entities = make(map[string]string, len(s.Context.Entities))
	for k, v := range s.Context.Entities {
		out.Context.Entities[k] = v
	}
	out.Context.History = append([]Message(nil), s.Context.History...)
	if out.Context.History == nil {
		out.Context.History = []Message{}
	}
	out.Context.CurrentItems = append([]string{}, s.Context.CurrentItems...)
	out.Context.ActiveFilters = s.Context.ActiveFilters.Clone()
	return &out
}

// ContextUpdate 是对会话上下文的部分更新，nil 字段表示不修改。
type ContextUpdate struct {
	CurrentIntent *Intent             `json:"current_intent,omitempty"`
	Entities      map[string]string   `json:"entities,omitempty"`
	ActiveFilters *vectorindex.Filter `json:"active_filters,omitempty"`
	CurrentItems  []string            `json:"current_items,omitempty"`
}

// MetadataUpdate 是对会话元信息的部分更新。
type MetadataUpdate struct {
	Language          *string `json:"language,omitempty"`
	ConversationStyle *string `json:"conversation_style,omitempty"`
}

// SessionUpdate 是 update 操作的类型化深度合并参数。
type SessionUpdate struct {
	Context  *ContextUpdate  `json:"context,omitempty"`
	Metadata *MetadataUpdate `json:"metadata,omitempty"`
}

// Apply 把更新深度合并到会话：同级字段保留，叶子值覆盖。
func (s *Session) Apply(u SessionUpdate) {
	if c := u.Context; c != nil {
		if c.CurrentIntent != nil {
			s.Context.CurrentIntent = *c.CurrentIntent
		}
		if len(c.Entities) > 0 {
			if s.Context.Entities == nil {
				s.Context.Entities = map[string]string{}
			}
			for k, v := range c.Entities {
				s.Context.Entities[k] = v
			}
		}
		if c.ActiveFilters != nil {
			s.Context.ActiveFilters = s.Context.ActiveFilters.Merge(*c.ActiveFilters)
		}
		if c.CurrentItems != nil {
			s.Context.CurrentItems = append([]string{}, c.CurrentItems...)
		}
	}
	if m := u.Metadata; m != nil {
		if m.Language != nil {
			s.Metadata.Language = *m.Language
		}
		if m.ConversationStyle != nil {
			s.Metadata.ConversationStyle = *m.ConversationStyle
		}
	}
}

// ResetContext 清空对话上下文，保留会话身份与元信息。
func (s *Session) ResetContext() {
	s.Context = SessionContext{
		Entities:     map[string]string{},
		History:      []Message{},
		CurrentItems: []string{},
	}
	s.Metadata.MessageCount = 0
}

// SessionStats 是会话存储的统计信息。
type SessionStats struct {
	ActiveSessions  int     `json:"active_sessions"`
	TotalMessages   int     `json:"total_messages"`
	AverageMessages float64 `json:"average_messages_per_session"`
}

// SessionSummary 是管理接口中会话列表的一项。
type SessionSummary struct {
	ID           string    `json:"session_id"`
	UserID       string    `json:"user_id,omitempty"`
	MessageCount int       `json:"message_count"`
	LastActivity LocalTime `json:"last_activity"`
}

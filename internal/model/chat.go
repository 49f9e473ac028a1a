package model

import "time"

// ChatRequest 是一次对话请求。
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// Action 是回复中建议前端执行的动作。
type Action struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Page  string `json:"page,omitempty"`
}

// Reply 是回复组装的结果。
type Reply struct {
	Text        string   `json:"text"`
	Type        string   `json:"type"`
	Suggestions []string `json:"suggestions"`
	Actions     []Action `json:"actions"`
}

// ChatReply 是一次对话请求的完整响应。
type ChatReply struct {
	Response    string            `json:"response"`
	SessionID   string            `json:"session_id"`
	Intent      Intent            `json:"intent"`
	Confidence  float64           `json:"confidence"`
	Entities    map[string]string `json:"entities"`
	Type        string            `json:"type"`
	Suggestions []string          `json:"suggestions"`
	Actions     []Action          `json:"actions"`
	Items       []RetrievedItem   `json:"items"`
	Timestamp   time.Time         `json:"timestamp"`
	// 流水线是否有步骤回退到了默认值
	Degraded bool `json:"degraded"`
}

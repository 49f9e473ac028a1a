// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"myreprise-chatbot-go/internal/middleware"
	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/internal/service"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/token"
)

// maxMessageLength 单条消息的最大长度（字节）
const maxMessageLength = 2000

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责处理对话请求，包括 HTTP 与 WebSocket 两种方式。
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{chatService: chatService, jwtManager: jwtManager}
}

// SendMessageRequest 定义了发送消息 API 的请求体结构。
type SendMessageRequest struct {
	Message   string `json:"message" binding:"max=2000"`
	SessionID string `json:"session_id"`
	// UserID 仅为兼容旧客户端保留，用户身份只取自 token
	UserID string `json:"user_id"`
}

// SendMessage 处理一条对话消息。匿名请求不带用户身份，不做个性化也不触发画像学习。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[ChatHandler] 无效的请求负载, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}
	userID := c.GetString(middleware.ContextUserID)
	if req.UserID != "" && req.UserID != userID {
		log.Warnf("[ChatHandler] 忽略与 token 不一致的 user_id: body=%q, token=%q", req.UserID, userID)
	}

	reply := h.chatService.ProcessMessage(c.Request.Context(), model.ChatRequest{
		Message:   req.Message,
		SessionID: req.SessionID,
		UserID:    userID,
	})
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": reply})
}

// wsMessage 是 WebSocket 上客户端发送的消息。
type wsMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// Handle 处理一个传入的 WebSocket 连接。token 通过查询参数传递，可选。
// 连接内的会话 ID 在多轮消息之间保持。
func (h *ChatHandler) Handle(c *gin.Context) {
	userID := ""
	if tokenString := c.Query("token"); tokenString != "" && h.jwtManager != nil {
		claims, err := h.jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
			return
		}
		userID = claims.UserID
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(4 * maxMessageLength)

	sessionID := c.Query("session_id")
	log.Infof("[ChatHandler] WebSocket 连接已建立, user: %q, session: %q", userID, sessionID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("[ChatHandler] 从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		msg := parseWSMessage(raw)
		if msg.Type == "ping" {
			_ = conn.WriteJSON(gin.H{"type": "pong", "timestamp": time.Now().UnixMilli()})
			continue
		}
		if len(msg.Message) > maxMessageLength {
			_ = conn.WriteJSON(gin.H{"type": "error", "message": "消息过长"})
			continue
		}
		if msg.SessionID != "" {
			sessionID = msg.SessionID
		}

		reply := h.chatService.ProcessMessage(c.Request.Context(), model.ChatRequest{
			Message:   msg.Message,
			SessionID: sessionID,
			UserID:    userID,
		})
		sessionID = reply.SessionID
		if err := conn.WriteJSON(gin.H{"type": "reply", "data": reply}); err != nil {
			log.Warnf("[ChatHandler] 写入 WebSocket 失败: %v", err)
			return
		}
	}
}

// parseWSMessage 接受 JSON 消息或纯文本消息。
func parseWSMessage(raw []byte) wsMessage {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var msg wsMessage
		if err := json.Unmarshal([]byte(trimmed), &msg); err == nil {
			return msg
		}
	}
	return wsMessage{Message: trimmed}
}

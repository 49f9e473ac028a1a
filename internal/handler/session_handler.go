package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"myreprise-chatbot-go/internal/middleware"
	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/internal/service"
	"myreprise-chatbot-go/pkg/log"
)

// SessionHandler 处理会话生命周期相关的 API 请求。
type SessionHandler struct {
	chatService service.ChatService
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(chatService service.ChatService) *SessionHandler {
	return &SessionHandler{chatService: chatService}
}

// Create 创建一个新会话，会话归属于 token 中的用户，匿名请求创建匿名会话。
func (h *SessionHandler) Create(c *gin.Context) {
	id, err := h.chatService.CreateSession(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		log.Error("[SessionHandler] 创建会话失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "创建会话失败", "data": nil})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": http.StatusCreated, "message": "success", "data": gin.H{"session_id": id}})
}

// Get 返回会话详情。
func (h *SessionHandler) Get(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": session})
}

// Clear 清空会话上下文。
func (h *SessionHandler) Clear(c *gin.Context) {
	if _, ok := h.ownedSession(c); !ok {
		return
	}
	if err := h.chatService.ClearSession(c.Request.Context(), c.Param("id")); err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "会话上下文已清空", "data": nil})
}

// End 结束会话。
func (h *SessionHandler) End(c *gin.Context) {
	if _, ok := h.ownedSession(c); !ok {
		return
	}
	if err := h.chatService.EndSession(c.Request.Context(), c.Param("id")); err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "会话已结束", "data": nil})
}

// List 列出本地会话，仅管理员可用。
func (h *SessionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.chatService.ListSessions()})
}

// ownedSession 读取路径中的会话。属于某个用户的会话只有本人或管理员可以访问，
// 匿名会话凭会话 ID 访问。
func (h *SessionHandler) ownedSession(c *gin.Context) (*model.Session, bool) {
	session, err := h.chatService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondSessionError(c, err)
		return nil, false
	}
	if session.UserID != "" && session.UserID != c.GetString(middleware.ContextUserID) && !middleware.IsAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "无权访问其他用户的会话", "data": nil})
		return nil, false
	}
	return session, true
}

func respondSessionError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在或已过期", "data": nil})
		return
	}
	log.Error("[SessionHandler] 会话操作失败", err)
	c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "会话操作失败", "data": nil})
}

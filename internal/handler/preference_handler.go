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

// PreferenceHandler 处理用户偏好相关的 API 请求。
type PreferenceHandler struct {
	chatService service.ChatService
}

// NewPreferenceHandler 创建一个新的 PreferenceHandler。
func NewPreferenceHandler(chatService service.ChatService) *PreferenceHandler {
	return &PreferenceHandler{chatService: chatService}
}

// Get 返回用户画像。
func (h *PreferenceHandler) Get(c *gin.Context) {
	userID, ok := authorizedUser(c, false)
	if !ok {
		return
	}
	profile := h.chatService.GetPreferences(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": profile})
}

// Update 显式修改用户偏好。
func (h *PreferenceHandler) Update(c *gin.Context) {
	userID, ok := authorizedUser(c, true)
	if !ok {
		return
	}
	var req model.PreferencesUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[PreferenceHandler] 无效的请求负载, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	profile, err := h.chatService.UpdatePreferences(c.Request.Context(), userID, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPreferences) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
			return
		}
		log.Error("[PreferenceHandler] 更新偏好失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "更新偏好失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "偏好已更新", "data": profile})
}

// Refresh 从偏好服务重新拉取画像。
func (h *PreferenceHandler) Refresh(c *gin.Context) {
	userID, ok := authorizedUser(c, true)
	if !ok {
		return
	}
	profile, err := h.chatService.RefreshPreferences(c.Request.Context(), userID)
	if err != nil {
		log.Warnf("[PreferenceHandler] 刷新偏好失败: user=%s, error: %v", userID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "偏好服务暂时不可用", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "偏好已从偏好服务刷新", "data": profile})
}

// authorizedUser 读取路径中的用户 ID。写操作必须认证；已认证的非管理员只能访问自己的偏好。
func authorizedUser(c *gin.Context, write bool) (string, bool) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少用户 ID", "data": nil})
		return "", false
	}
	authed := c.GetString(middleware.ContextUserID)
	if write && authed == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "修改偏好需要登录", "data": nil})
		return "", false
	}
	if authed != "" && authed != userID && !middleware.IsAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "无权访问其他用户的偏好", "data": nil})
		return "", false
	}
	return userID, true
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"myreprise-chatbot-go/internal/service"
)

// HealthHandler 暴露健康检查与运行统计。
type HealthHandler struct {
	chatService service.ChatService
}

// NewHealthHandler 创建一个新的 HealthHandler。
func NewHealthHandler(chatService service.ChatService) *HealthHandler {
	return &HealthHandler{chatService: chatService}
}

// Health 在降级时仍返回 200，由 status 字段区分。
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.chatService.Health(c.Request.Context())})
}

func (h *HealthHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.chatService.Stats()})
}

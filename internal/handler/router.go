package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"myreprise-chatbot-go/internal/middleware"
	"myreprise-chatbot-go/internal/service"
	"myreprise-chatbot-go/pkg/token"
)

// RouterDeps 是注册路由所需的组件。
type RouterDeps struct {
	ChatService  service.ChatService
	IndexService service.IndexService
	JWTManager   *token.JWTManager
	RateLimit    float64
	RateBurst    int
}

// NewRouter 创建路由引擎并注册所有路由。
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	chatHandler := NewChatHandler(deps.ChatService, deps.JWTManager)
	sessionHandler := NewSessionHandler(deps.ChatService)
	preferenceHandler := NewPreferenceHandler(deps.ChatService)
	healthHandler := NewHealthHandler(deps.ChatService)
	adminHandler := NewAdminHandler(deps.IndexService)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/chat/ws", chatHandler.Handle)

	apiV1 := r.Group("/api/v1")
	{
		chat := apiV1.Group("/chat")
		chat.Use(middleware.OptionalAuth(deps.JWTManager))
		{
			chat.POST("/message", middleware.RateLimit(deps.RateLimit, deps.RateBurst), chatHandler.SendMessage)

			chat.POST("/sessions", sessionHandler.Create)
			chat.GET("/sessions/:id", sessionHandler.Get)
			chat.POST("/sessions/:id/clear", sessionHandler.Clear)
			chat.DELETE("/sessions/:id", sessionHandler.End)

			chat.GET("/preferences/:userId", preferenceHandler.Get)
			// 修改与刷新画像必须认证
			chat.PUT("/preferences/:userId", middleware.RequireAuth(deps.JWTManager), preferenceHandler.Update)
			chat.POST("/preferences/:userId/refresh", middleware.RequireAuth(deps.JWTManager), preferenceHandler.Refresh)

			chat.GET("/health", healthHandler.Health)
			chat.GET("/stats", healthHandler.Stats)
		}

		admin := apiV1.Group("/admin")
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin.Use(middleware.RequireAuth(deps.JWTManager), middleware.AdminAuthMiddleware())
		{
			admin.GET("/sessions", sessionHandler.List)

			index := admin.Group("/index")
			{
				index.POST("/reindex", adminHandler.Reindex)
				index.POST("/items/:id", adminHandler.EnqueueItem)
				index.POST("/compact", adminHandler.Compact)
				index.POST("/snapshot", adminHandler.SaveSnapshot)
				index.POST("/snapshot/load", adminHandler.LoadSnapshot)
				index.GET("/stats", adminHandler.IndexStats)
			}
		}
	}
	return r
}

// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/token"
)

// 上下文中保存用户信息的键
const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

// OptionalAuth 创建一个 Gin 中间件，用于可选的 JWT 认证。
// 没有授权头时匿名放行；有授权头但 token 无效时拒绝请求。
func OptionalAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		if !authenticate(c, jwtManager) {
			return
		}
		c.Next()
	}
}

// RequireAuth 要求请求携带有效的 JWT。
func RequireAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}
		if !authenticate(c, jwtManager) {
			return
		}
		c.Next()
	}
}

// authenticate 解析 Bearer token 并把用户 ID 与角色写入上下文，失败时中止请求。
func authenticate(c *gin.Context, jwtManager *token.JWTManager) bool {
	// Token 以 "Bearer <token>" 的形式提供
	const bearerPrefix = "Bearer "
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
		return false
	}
	claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
	if err != nil || claims.UserID == "" {
		log.Warnf("[Auth] token 校验失败: %v", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
		return false
	}
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextRole, claims.Role)
	return true
}

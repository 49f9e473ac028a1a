package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"myreprise-chatbot-go/pkg/log"
)

// RateLimit 按客户端（已认证用户优先，否则 IP）限制请求速率。
// 空闲超过 10 分钟的客户端限流器会被回收。perSecond <= 0 时不限流。
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	limiters := cache.New(10*time.Minute, 5*time.Minute)

	return func(c *gin.Context) {
		key := c.GetString(ContextUserID)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
		if err := limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
			if existing, ok := limiters.Get(key); ok {
				limiter = existing.(*rate.Limiter)
			}
		}
		// 刷新过期时间
		limiters.SetDefault(key, limiter)

		if !limiter.Allow() {
			log.Warnf("[RateLimit] 请求过于频繁: %s", key)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "message": "请求过于频繁，请稍后重试", "data": nil})
			return
		}
		c.Next()
	}
}

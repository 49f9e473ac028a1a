// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"

	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/pkg/log"
)

// SessionRepository 定义了会话远端存储的操作接口。
// Get 在会话不存在或数据损坏时返回 (nil, nil)。
type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	Save(ctx context.Context, session *model.Session, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewRedisSessionRepository 创建一个基于 Redis 的 SessionRepository。
func NewRedisSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

// Get 从 Redis 读取会话。
func (r *redisSessionRepository) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var session model.Session
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		// 数据损坏视为不存在，由调用方重新创建会话
		log.Warnf("[SessionRepository] 会话数据无法解析, 视为不存在: %s, error: %v", sessionID, err)
		return nil, nil
	}
	return &session, nil
}

// Save 把会话写入 Redis 并设置 TTL。
func (r *redisSessionRepository) Save(ctx context.Context, session *model.Session, ttl time.Duration) error {
	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.redisClient.Set(ctx, sessionKey(session.ID), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

// Delete 删除会话。
func (r *redisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.redisClient.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

type memorySessionRepository struct {
	cache *cache.Cache
}

// NewMemorySessionRepository 创建一个进程内带 TTL 的 SessionRepository，未配置 Redis 时使用。
func NewMemorySessionRepository(cleanupInterval time.Duration) SessionRepository {
	return &memorySessionRepository{cache: cache.New(time.Hour, cleanupInterval)}
}

// Get 返回会话的副本。
func (r *memorySessionRepository) Get(_ context.Context, sessionID string) (*model.Session, error) {
	if x, found := r.cache.Get(sessionKey(sessionID)); found {
		return x.(*model.Session).Clone(), nil
	}
	return nil, nil
}

// Save 保存会话的副本。
func (r *memorySessionRepository) Save(_ context.Context, session *model.Session, ttl time.Duration) error {
	r.cache.Set(sessionKey(session.ID), session.Clone(), ttl)
	return nil
}

// Delete 删除会话。
func (r *memorySessionRepository) Delete(_ context.Context, sessionID string) error {
	r.cache.Delete(sessionKey(sessionID))
	return nil
}

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

// ProfileRepository 定义了用户画像共享缓存的操作接口。
// Get 在画像不存在时返回 (nil, nil)。
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (*model.UserProfile, error)
	Save(ctx context.Context, profile *model.UserProfile, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}

func profileKey(userID string) string {
	return fmt.Sprintf("user_profile:%s", userID)
}

type redisProfileRepository struct {
	redisClient *redis.Client
}

// NewRedisProfileRepository 创建一个基于 Redis 的 ProfileRepository。
func NewRedisProfileRepository(redisClient *redis.Client) ProfileRepository {
	return &redisProfileRepository{redisClient: redisClient}
}

func (r *redisProfileRepository) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	jsonData, err := r.redisClient.Get(ctx, profileKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	var profile model.UserProfile
	if err := json.Unmarshal([]byte(jsonData), &profile); err != nil {
		log.Warnf("[ProfileRepository] 画像数据无法解析, 视为不存在: %s, error: %v", userID, err)
		return nil, nil
	}
	return &profile, nil
}

func (r *redisProfileRepository) Save(ctx context.Context, profile *model.UserProfile, ttl time.Duration) error {
	jsonData, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := r.redisClient.Set(ctx, profileKey(profile.UserID), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set profile: %w", err)
	}
	return nil
}

func (r *redisProfileRepository) Delete(ctx context.Context, userID string) error {
	if err := r.redisClient.Del(ctx, profileKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

type memoryProfileRepository struct {
	cache *cache.Cache
}

// NewMemoryProfileRepository 创建一个进程内的 ProfileRepository。
func NewMemoryProfileRepository(cleanupInterval time.Duration) ProfileRepository {
	return &memoryProfileRepository{cache: cache.New(time.Hour, cleanupInterval)}
}

func (r *memoryProfileRepository) Get(_ context.Context, userID string) (*model.UserProfile, error) {
	if x, found := r.cache.Get(profileKey(userID)); found {
		return x.(*model.UserProfile).Clone(), nil
	}
	return nil, nil
}

func (r *memoryProfileRepository) Save(_ context.Context, profile *model.UserProfile, ttl time.Duration) error {
	r.cache.Set(profileKey(profile.UserID), profile.Clone(), ttl)
	return nil
}

func (r *memoryProfileRepository) Delete(_ context.Context, userID string) error {
	r.cache.Delete(profileKey(userID))
	return nil
}

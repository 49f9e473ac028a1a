// Package prefsource 提供了访问用户偏好图服务的客户端。
package prefsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"myreprise-chatbot-go/internal/config"
	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/metrics"
)

// ErrNotFound 偏好服务中没有该用户。
var ErrNotFound = errors.New("user preferences not found")

// Source 定义了获取用户画像的外部来源。
type Source interface {
	FetchProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	Health(ctx context.Context) bool
}

type graphPreferences struct {
	UserID              interface{} `json:"user_id"`
	PreferredCategories []struct {
		CategoryNameFr string `json:"category_name_fr"`
	} `json:"preferred_categories"`
	PreferredBrands []struct {
		BrandNameFr string `json:"brand_name_fr"`
	} `json:"preferred_brands"`
	PriceRange *struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"price_range"`
	InteractionStats struct {
		TotalViews    int `json:"total_views"`
		TotalLikes    int `json:"total_likes"`
		TotalSearches int `json:"total_searches"`
	} `json:"interaction_stats"`
	LastUpdated string `json:"last_updated"`
}

type graphClient struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[*model.UserProfile]
	now     func() time.Time
}

// NewClient 创建一个带熔断器的偏好图服务客户端。
func NewClient(cfg config.PreferenceSourceConfig) Source {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openFor := time.Duration(cfg.OpenSeconds) * time.Second
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	metrics.PreferenceBreakerState.Set(0)
	cb := gobreaker.NewCircuitBreaker[*model.UserProfile](gobreaker.Settings{
		Name:        "preference-source",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// 用户不存在不算作服务故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("[PreferenceSource] 熔断器状态变化: %s -> %s", from, to)
			metrics.PreferenceBreakerState.Set(float64(to))
		},
	})

	return &graphClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
		now:     time.Now,
	}
}

// FetchProfile 获取用户偏好并转换为画像。
func (c *graphClient) FetchProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	return c.cb.Execute(func() (*model.UserProfile, error) {
		return c.fetch(ctx, userID)
	})
}

func (c *graphClient) fetch(ctx context.Context, userID string) (*model.UserProfile, error) {
	endpoint := fmt.Sprintf("%s/user-preferences/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create preference request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call preference source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preference source returned non-200 status: %s", resp.Status)
	}

	var prefs graphPreferences
	if err := json.NewDecoder(resp.Body).Decode(&prefs); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return convert(userID, prefs, c.now()), nil
}

// Health 检查偏好服务是否可用。
func (c *graphClient) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// convert 把偏好图的数据结构转换为画像。
func convert(userID string, prefs graphPreferences, now time.Time) *model.UserProfile {
	profile := model.DefaultProfile(userID)
	profile.IsDefault = false

	for _, c := range prefs.PreferredCategories {
		profile.PreferredCategories = append(profile.PreferredCategories, c.CategoryNameFr)
	}
	for _, b := range prefs.PreferredBrands {
		profile.PreferredBrands = append(profile.PreferredBrands, b.BrandNameFr)
	}
	if prefs.PriceRange != nil {
		profile.PriceRange = model.PriceRange{Min: prefs.PriceRange.Min, Max: prefs.PriceRange.Max}
	}

	stats := prefs.InteractionStats
	for _, s := range []struct {
		action string
		count  int
	}{
		{"viewed", stats.TotalViews},
		{"liked", stats.TotalLikes},
		{"searched", stats.TotalSearches},
	} {
		if s.count > 0 {
			profile.InteractionHistory = append(profile.InteractionHistory, model.InteractionRecord{
				Type: s.action, Count: s.count, Timestamp: now,
			})
		}
	}
	profile.ConversationStyle = styleFor(stats.TotalViews + stats.TotalLikes + stats.TotalSearches)

	if ts, ok := parseTime(prefs.LastUpdated); ok {
		profile.LastInteraction = ts
		profile.PreferencesUpdatedAt = ts
	}
	profile.Normalize()
	return profile
}

// styleFor 根据交互量推断对话风格
func styleFor(total int) string {
	switch {
	case total > 100:
		return "technical"
	case total > 20:
		return "casual"
	default:
		return "formal"
	}
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

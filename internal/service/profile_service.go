package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/internal/repository"
	"myreprise-chatbot-go/pkg/keylock"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/metrics"
	"myreprise-chatbot-go/pkg/prefsource"
)

var (
	// ErrInvalidPreferences 用户提交的偏好不合法。
	ErrInvalidPreferences = errors.New("invalid preferences")
	// ErrSourceUnavailable 偏好服务未配置或不可用。
	ErrSourceUnavailable = errors.New("preference source unavailable")
)

// ProfileService 定义了用户画像缓存的操作。
type ProfileService interface {
	GetProfile(ctx context.Context, userID string) *model.UserProfile
	Invalidate(ctx context.Context, userID string)
	Refresh(ctx context.Context, userID string) (*model.UserProfile, error)
	Learn(ctx context.Context, userID string, signals model.InteractionSignals) error
	UpdatePreferences(ctx context.Context, userID string, update model.PreferencesUpdate) (*model.UserProfile, error)
}

// ProfileOptions 画像缓存的可选参数。
type ProfileOptions struct {
	TTL time.Duration
	// DefaultTTL 偏好服务不可用时默认画像的缓存时间
	DefaultTTL    time.Duration
	RemoteTimeout time.Duration
	// FetchTimeout 一次合并后的画像获取的总超时，与发起请求的调用方无关
	FetchTimeout time.Duration
	Now          func() time.Time
}

type profileService struct {
	local  *cache.Cache
	repo   repository.ProfileRepository
	source prefsource.Source
	prefs  repository.PreferenceRepository
	locks  *keylock.KeyLock
	group  singleflight.Group

	ttl           time.Duration
	defaultTTL    time.Duration
	remoteTimeout time.Duration
	fetchTimeout  time.Duration
	now           func() time.Time
}

// NewProfileService 创建画像缓存。repo、source、prefs 均可为 nil。
func NewProfileService(repo repository.ProfileRepository, source prefsource.Source, prefs repository.PreferenceRepository, opts ProfileOptions) ProfileService {
	s := &profileService{
		repo:          repo,
		source:        source,
		prefs:         prefs,
		locks:         keylock.New(),
		ttl:           opts.TTL,
		defaultTTL:    opts.DefaultTTL,
		remoteTimeout: opts.RemoteTimeout,
		fetchTimeout:  opts.FetchTimeout,
		now:           opts.Now,
	}
	if s.ttl <= 0 {
		s.ttl = time.Hour
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = time.Minute
	}
	if s.remoteTimeout <= 0 {
		s.remoteTimeout = 2 * time.Second
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = 10 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.local = cache.New(s.ttl, 10*time.Minute)
	return s
}

// GetProfile 依次从本地缓存、共享缓存、偏好服务获取画像，永不失败。
func (s *profileService) GetProfile(ctx context.Context, userID string) *model.UserProfile {
	if p, ok := s.cached(userID); ok {
		metrics.ProfileLookupsTotal.WithLabelValues("cache").Inc()
		return p
	}
	// 合并的获取可能服务多个调用方，不能随第一个调用方取消
	ch := s.group.DoChan(userID, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.resolve(fctx, userID), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*model.UserProfile).Clone()
	case <-ctx.Done():
		metrics.ProfileLookupsTotal.WithLabelValues("default").Inc()
		return model.DefaultProfile(userID)
	}
}

func (s *profileService) cached(userID string) (*model.UserProfile, bool) {
	if x, found := s.local.Get(userID); found {
		return x.(*model.UserProfile).Clone(), true
	}
	return nil, false
}

// resolve 处理本地缓存未命中的情况。
func (s *profileService) resolve(ctx context.Context, userID string) *model.UserProfile {
	if p, ok := s.cached(userID); ok {
		return p
	}
	if s.repo != nil {
		rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
		p, err := s.repo.Get(rctx, userID)
		cancel()
		if err != nil {
			log.Warnf("[ProfileService] 读取共享画像缓存失败: %s, error: %v", userID, err)
		} else if p != nil {
			metrics.ProfileLookupsTotal.WithLabelValues("store").Inc()
			p.Normalize()
			ttl := s.ttl
			if p.IsDefault {
				ttl = s.defaultTTL
			}
			s.local.Set(userID, p.Clone(), ttl)
			return p
		}
	}

	profile, err := s.fetch(ctx, userID)
	ttl := s.ttl
	switch {
	case err == nil:
		metrics.ProfileLookupsTotal.WithLabelValues("source").Inc()
	case errors.Is(err, prefsource.ErrNotFound):
		metrics.ProfileLookupsTotal.WithLabelValues("default").Inc()
		profile = model.DefaultProfile(userID)
	default:
		log.Warnf("[ProfileService] 偏好服务不可用, 使用默认画像: %s, error: %v", userID, err)
		metrics.ProfileLookupsTotal.WithLabelValues("default").Inc()
		profile = model.DefaultProfile(userID)
		ttl = s.defaultTTL
	}
	s.overlay(ctx, profile)
	s.save(ctx, profile, ttl)
	return profile
}

// fetch 从偏好服务读取画像。
func (s *profileService) fetch(ctx context.Context, userID string) (*model.UserProfile, error) {
	if s.source == nil {
		return nil, ErrSourceUnavailable
	}
	p, err := s.source.FetchProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.UserID = userID
	p.Normalize()
	return p, nil
}

// overlay 用 MySQL 中保存的显式偏好覆盖画像。
func (s *profileService) overlay(ctx context.Context, p *model.UserProfile) {
	if s.prefs == nil {
		return
	}
	pref, err := s.prefs.Find(ctx, p.UserID)
	if err != nil {
		log.Warnf("[ProfileService] 读取显式偏好失败: %s, error: %v", p.UserID, err)
		return
	}
	if pref != nil {
		pref.Overlay(p)
		p.Normalize()
	}
}

func (s *profileService) save(ctx context.Context, p *model.UserProfile, ttl time.Duration) {
	s.local.Set(p.UserID, p.Clone(), ttl)
	if s.repo == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()
	if err := s.repo.Save(rctx, p, ttl); err != nil {
		log.Warnf("[ProfileService] 写入共享画像缓存失败: %s, error: %v", p.UserID, err)
	}
}

// Invalidate 删除用户的缓存画像。
func (s *profileService) Invalidate(ctx context.Context, userID string) {
	s.local.Delete(userID)
	s.group.Forget(userID)
	if s.repo == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()
	if err := s.repo.Delete(rctx, userID); err != nil {
		log.Warnf("[ProfileService] 删除共享画像缓存失败: %s, error: %v", userID, err)
	}
}

// Refresh 丢弃缓存并强制从偏好服务重新获取。
func (s *profileService) Refresh(ctx context.Context, userID string) (*model.UserProfile, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	s.Invalidate(ctx, userID)
	profile, err := s.fetch(ctx, userID)
	if err != nil {
		if !errors.Is(err, prefsource.ErrNotFound) {
			return nil, fmt.Errorf("failed to refresh profile %s: %w", userID, err)
		}
		profile = model.DefaultProfile(userID)
	}
	s.overlay(ctx, profile)
	s.save(ctx, profile, s.ttl)
	log.Infof("[ProfileService] 刷新用户画像: %s", userID)
	return profile.Clone(), nil
}

// Learn 把交互信号并入画像，偏好只增不减。
func (s *profileService) Learn(ctx context.Context, userID string, signals model.InteractionSignals) error {
	if userID == "" {
		return fmt.Errorf("learn: empty user id")
	}
	if signals.Empty() {
		return nil
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	profile := s.GetProfile(ctx, userID)
	applySignals(profile, signals)
	ts := signals.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	kind := signals.Type
	if kind == "" {
		kind = "interaction"
	}
	profile.InteractionHistory = append(profile.InteractionHistory, model.InteractionRecord{Type: kind, Count: 1, Timestamp: ts})
	if ts.After(profile.LastInteraction) {
		profile.LastInteraction = ts
	}
	profile.IsDefault = false
	profile.Normalize()

	s.save(ctx, profile, s.ttl)
	return nil
}

// applySignals 合并类目与品牌，并把价格区间扩展到覆盖观察到的价格。
func applySignals(p *model.UserProfile, signals model.InteractionSignals) {
	var categories, brands []string
	prices := append([]float64{}, signals.Prices...)
	for _, items := range [][]model.ItemSignal{signals.ViewedItems, signals.LikedItems} {
		for _, item := range items {
			categories = append(categories, item.Category)
			brands = append(brands, item.Brand)
			if item.Price > 0 {
				prices = append(prices, item.Price)
			}
		}
	}
	p.PreferredCategories = model.UnionSet(p.PreferredCategories, categories)
	p.PreferredBrands = model.UnionSet(p.PreferredBrands, brands)

	r := p.PriceRange
	for _, price := range prices {
		if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
			continue
		}
		r.Min = math.Min(r.Min, price)
		r.Max = math.Max(r.Max, price)
	}
	p.PriceRange = r.Normalize()
}

// UpdatePreferences 保存用户显式修改的偏好。
func (s *profileService) UpdatePreferences(ctx context.Context, userID string, update model.PreferencesUpdate) (*model.UserProfile, error) {
	if update.ConversationStyle != nil && !model.ValidStyle(*update.ConversationStyle) {
		return nil, fmt.Errorf("%w: conversation_style %q", ErrInvalidPreferences, *update.ConversationStyle)
	}
	if update.Language != nil && !model.ValidLanguage(*update.Language) {
		return nil, fmt.Errorf("%w: language %q", ErrInvalidPreferences, *update.Language)
	}
	if r := update.PriceRange; r != nil && (math.IsNaN(r.Min) || math.IsNaN(r.Max)) {
		return nil, fmt.Errorf("%w: price_range", ErrInvalidPreferences)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	profile := s.GetProfile(ctx, userID)
	if update.PreferredCategories != nil {
		profile.PreferredCategories = append([]string{}, (*update.PreferredCategories)...)
	}
	if update.PreferredBrands != nil {
		profile.PreferredBrands = append([]string{}, (*update.PreferredBrands)...)
	}
	if update.PriceRange != nil {
		profile.PriceRange = update.PriceRange.Normalize()
	}
	if update.ConversationStyle != nil {
		profile.ConversationStyle = *update.ConversationStyle
	}
	if update.Language != nil {
		profile.Language = *update.Language
	}
	profile.PreferencesUpdatedAt = s.now()
	profile.IsDefault = false
	profile.Normalize()

	if s.prefs != nil {
		if err := s.prefs.Upsert(ctx, model.PreferenceFromProfile(profile)); err != nil {
			return nil, fmt.Errorf("failed to persist preferences: %w", err)
		}
	}
	s.save(ctx, profile, s.ttl)
	log.Infof("[ProfileService] 用户更新偏好: %s", userID)
	return profile.Clone(), nil
}

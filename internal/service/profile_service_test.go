package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/internal/repository"
	"myreprise-chatbot-go/pkg/prefsource"
)

type fakeSource struct {
	calls   atomic.Int32
	err     error
	profile *model.UserProfile
	delay   time.Duration
}

func (f *fakeSource) FetchProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	p := f.profile.Clone()
	p.UserID = userID
	return p, nil
}

func (f *fakeSource) Health(context.Context) bool { return f.err == nil }

type fakePreferenceRepo struct {
	mu    sync.Mutex
	store map[string]*model.UserPreference
}

func newFakePreferenceRepo() *fakePreferenceRepo {
	return &fakePreferenceRepo{store: map[string]*model.UserPreference{}}
}

func (f *fakePreferenceRepo) Find(_ context.Context, userID string) (*model.UserPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store[userID], nil
}

func (f *fakePreferenceRepo) Upsert(_ context.Context, pref *model.UserPreference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[pref.UserID] = pref
	return nil
}

func (f *fakePreferenceRepo) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.store, userID)
	return nil
}

func phoneLover() *model.UserProfile {
	p := model.DefaultProfile("")
	p.IsDefault = false
	p.PreferredCategories = []string{"Smartphones"}
	p.PreferredBrands = []string{"Apple"}
	p.PriceRange = model.PriceRange{Min: 0, Max: 300}
	return p
}

func TestGetProfileIsCachedAndIdentical(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{profile: phoneLover()}
	svc := NewProfileService(nil, src, nil, ProfileOptions{})

	first := svc.GetProfile(ctx, "u1")
	second := svc.GetProfile(ctx, "u1")
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())

	first.PreferredBrands[0] = "Sony"
	assert.Equal(t, []string{"Apple"}, svc.GetProfile(ctx, "u1").PreferredBrands)
}

func TestGetProfileSurvivesFirstCallerCancel(t *testing.T) {
	src := &fakeSource{profile: phoneLover(), delay: 100 * time.Millisecond}
	svc := NewProfileService(nil, src, nil, ProfileOptions{})

	first, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var cancelled, waiting *model.UserProfile
	wg.Add(2)
	go func() {
		defer wg.Done()
		cancelled = svc.GetProfile(first, "42")
	}()
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		waiting = svc.GetProfile(context.Background(), "42")
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.True(t, cancelled.IsDefault)
	require.NotNil(t, waiting)
	assert.False(t, waiting.IsDefault)
	assert.Equal(t, []string{"Apple"}, waiting.PreferredBrands)
	assert.Equal(t, int32(1), src.calls.Load())

	cached := svc.GetProfile(context.Background(), "42")
	assert.False(t, cached.IsDefault)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestGetProfileCoalescesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{profile: phoneLover(), delay: 50 * time.Millisecond}
	svc := NewProfileService(nil, src, nil, ProfileOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, []string{"Apple"}, svc.GetProfile(ctx, "u1").PreferredBrands)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestGetProfileDefaultsWhenSourceUnavailable(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	src := &fakeSource{err: errors.New("connection refused")}
	svc := NewProfileService(nil, src, nil, ProfileOptions{DefaultTTL: 20 * time.Millisecond, Now: clock.Now})

	p := svc.GetProfile(ctx, "u1")
	assert.True(t, p.IsDefault)
	assert.Empty(t, p.PreferredCategories)
	assert.Equal(t, model.PriceRange{Min: 0, Max: model.DefaultMaxPrice}, p.PriceRange)
	assert.Equal(t, "casual", p.ConversationStyle)
	assert.Equal(t, "fr", p.Language)

	// 默认画像只短暂缓存，之后重新请求偏好服务
	time.Sleep(40 * time.Millisecond)
	svc.GetProfile(ctx, "u1")
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestGetProfileWithoutSource(t *testing.T) {
	p := NewProfileService(nil, nil, nil, ProfileOptions{}).GetProfile(context.Background(), "u1")
	assert.True(t, p.IsDefault)
	assert.Equal(t, "u1", p.UserID)
}

func TestGetProfileUsesSharedStore(t *testing.T) {
	ctx := context.Background()
	shared := repository.NewMemoryProfileRepository(time.Minute)
	src := &fakeSource{profile: phoneLover()}

	a := NewProfileService(shared, src, nil, ProfileOptions{})
	b := NewProfileService(shared, src, nil, ProfileOptions{})
	a.GetProfile(ctx, "u1")
	p := b.GetProfile(ctx, "u1")

	assert.Equal(t, []string{"Apple"}, p.PreferredBrands)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestLearnWidensPriceRange(t *testing.T) {
	ctx := context.Background()
	svc := NewProfileService(nil, &fakeSource{profile: phoneLover()}, nil, ProfileOptions{})

	require.NoError(t, svc.Learn(ctx, "u1", model.InteractionSignals{Type: "search", Prices: []float64{100, 500}}))
	p := svc.GetProfile(ctx, "u1")
	assert.Equal(t, model.PriceRange{Min: 0, Max: 500}, p.PriceRange)

	// 不会缩小
	require.NoError(t, svc.Learn(ctx, "u1", model.InteractionSignals{Prices: []float64{200}}))
	assert.Equal(t, model.PriceRange{Min: 0, Max: 500}, svc.GetProfile(ctx, "u1").PriceRange)
}

func TestLearnUnionsPreferences(t *testing.T) {
	ctx := context.Background()
	svc := NewProfileService(nil, &fakeSource{profile: phoneLover()}, nil, ProfileOptions{})

	require.NoError(t, svc.Learn(ctx, "u1", model.InteractionSignals{
		Type:        "view",
		ViewedItems: []model.ItemSignal{{ItemID: "1", Category: "Audio", Brand: "Sony", Price: 120}},
		LikedItems:  []model.ItemSignal{{ItemID: "2", Category: "smartphones", Brand: "Samsung"}},
	}))

	p := svc.GetProfile(ctx, "u1")
	assert.Equal(t, []string{"Audio", "Smartphones"}, p.PreferredCategories)
	assert.Equal(t, []string{"Apple", "Samsung", "Sony"}, p.PreferredBrands)
	require.NotEmpty(t, p.InteractionHistory)
	assert.Equal(t, "view", p.InteractionHistory[len(p.InteractionHistory)-1].Type)
}

func TestLearnHistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	svc := NewProfileService(nil, nil, nil, ProfileOptions{})
	for i := 0; i < model.MaxInteractionHistory+20; i++ {
		require.NoError(t, svc.Learn(ctx, "u1", model.InteractionSignals{Prices: []float64{10}}))
	}
	assert.Len(t, svc.GetProfile(ctx, "u1").InteractionHistory, model.MaxInteractionHistory)
}

func TestLearnIgnoresEmptySignals(t *testing.T) {
	svc := NewProfileService(nil, nil, nil, ProfileOptions{})
	require.NoError(t, svc.Learn(context.Background(), "u1", model.InteractionSignals{}))
	assert.Error(t, svc.Learn(context.Background(), "", model.InteractionSignals{Prices: []float64{1}}))
}

func TestUpdatePreferencesValidatesAndPersists(t *testing.T) {
	ctx := context.Background()
	prefs := newFakePreferenceRepo()
	src := &fakeSource{profile: phoneLover()}
	svc := NewProfileService(nil, src, prefs, ProfileOptions{})

	bad := "shouty"
	_, err := svc.UpdatePreferences(ctx, "u1", model.PreferencesUpdate{ConversationStyle: &bad})
	assert.ErrorIs(t, err, ErrInvalidPreferences)

	style := "formal"
	brands := []string{"Sony", "sony", "Bose"}
	p, err := svc.UpdatePreferences(ctx, "u1", model.PreferencesUpdate{
		ConversationStyle: &style,
		PreferredBrands:   &brands,
		PriceRange:        &model.PriceRange{Min: 800, Max: -5},
	})
	require.NoError(t, err)
	assert.Equal(t, "formal", p.ConversationStyle)
	assert.Equal(t, []string{"Bose", "Sony"}, p.PreferredBrands)
	assert.Equal(t, model.PriceRange{Min: 0, Max: 800}, p.PriceRange)

	stored, _ := prefs.Find(ctx, "u1")
	require.NotNil(t, stored)
	assert.Equal(t, []string{"Bose", "Sony"}, stored.Brands)

	// 刷新后显式偏好依然覆盖偏好服务返回的值
	refreshed, err := svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bose", "Sony"}, refreshed.PreferredBrands)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestRefreshFailsWhenSourceDown(t *testing.T) {
	svc := NewProfileService(nil, &fakeSource{err: errors.New("timeout")}, nil, ProfileOptions{})
	_, err := svc.Refresh(context.Background(), "u1")
	assert.Error(t, err)

	_, err = NewProfileService(nil, nil, nil, ProfileOptions{}).Refresh(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestRefreshTreatsNotFoundAsDefault(t *testing.T) {
	svc := NewProfileService(nil, &fakeSource{err: prefsource.ErrNotFound}, nil, ProfileOptions{})
	p, err := svc.Refresh(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, p.IsDefault)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{profile: phoneLover()}
	svc := NewProfileService(nil, src, nil, ProfileOptions{})
	svc.GetProfile(ctx, "u1")
	svc.Invalidate(ctx, "u1")
	svc.GetProfile(ctx, "u1")
	assert.Equal(t, int32(2), src.calls.Load())
}

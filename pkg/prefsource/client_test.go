package prefsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myreprise-chatbot-go/internal/config"
)

const samplePreferences = `{
  "user_id": 42,
  "preferred_categories": [{"category_name_fr": "Smartphones"}, {"category_name_fr": "Audio"}],
  "preferred_brands": [{"brand_name_fr": "Apple"}],
  "price_range": {"min": 900, "max": 100},
  "interaction_stats": {"total_views": 30, "total_likes": 5, "total_searches": 0},
  "last_updated": "2024-05-01T10:00:00"
}`

func TestFetchProfileConvertsGraphPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user-preferences/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePreferences))
	}))
	defer srv.Close()

	src := NewClient(config.PreferenceSourceConfig{BaseURL: srv.URL + "/"})
	p, err := src.FetchProfile(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, "42", p.UserID)
	assert.False(t, p.IsDefault)
	assert.Equal(t, []string{"Audio", "Smartphones"}, p.PreferredCategories)
	assert.Equal(t, []string{"Apple"}, p.PreferredBrands)
	// 区间被修正为 min <= max
	assert.Equal(t, 100.0, p.PriceRange.Min)
	assert.Equal(t, 900.0, p.PriceRange.Max)
	require.Len(t, p.InteractionHistory, 2)
	assert.Equal(t, "viewed", p.InteractionHistory[0].Type)
	assert.Equal(t, 30, p.InteractionHistory[0].Count)
	assert.Equal(t, "liked", p.InteractionHistory[1].Type)
	assert.Equal(t, "casual", p.ConversationStyle)
	assert.Equal(t, 2024, p.PreferencesUpdatedAt.Year())
}

func TestFetchProfileNotFoundDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewClient(config.PreferenceSourceConfig{BaseURL: srv.URL, FailureThreshold: 2})
	for i := 0; i < 5; i++ {
		_, err := src.FetchProfile(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestFetchProfileOpensBreakerAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewClient(config.PreferenceSourceConfig{BaseURL: srv.URL, FailureThreshold: 2, OpenSeconds: 60})
	for i := 0; i < 4; i++ {
		_, err := src.FetchProfile(context.Background(), "u1")
		require.Error(t, err)
	}
	// 熔断打开后不再请求下游
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchProfileHonoursTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	src := NewClient(config.PreferenceSourceConfig{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := src.FetchProfile(ctx, "u1")
	assert.Error(t, err)
}

func TestStyleFor(t *testing.T) {
	assert.Equal(t, "formal", styleFor(0))
	assert.Equal(t, "formal", styleFor(20))
	assert.Equal(t, "casual", styleFor(21))
	assert.Equal(t, "technical", styleFor(101))
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.True(t, NewClient(config.PreferenceSourceConfig{BaseURL: srv.URL}).Health(context.Background()))
	assert.False(t, NewClient(config.PreferenceSourceConfig{BaseURL: "http://127.0.0.1:1"}).Health(context.Background()))
}

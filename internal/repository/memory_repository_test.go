package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myreprise-chatbot-go/internal/model"
)

func TestMemorySessionRepositoryStoresCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRepository(time.Minute)

	s := model.NewSession("s1", "u1", time.Now())
	require.NoError(t, repo.Save(ctx, s, time.Hour))
	s.Context.Entities["brand"] = "Apple"

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Empty(t, got.Context.Entities)

	require.NoError(t, repo.Delete(ctx, "s1"))
	got, err = repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemorySessionRepositoryHonoursTTL(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRepository(time.Minute)
	require.NoError(t, repo.Save(ctx, model.NewSession("s1", "", time.Now()), 20*time.Millisecond))

	time.Sleep(40 * time.Millisecond)
	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryProfileRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProfileRepository(time.Minute)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	p := model.DefaultProfile("u1")
	p.PreferredBrands = []string{"Apple"}
	require.NoError(t, repo.Save(ctx, p, time.Hour))

	got, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"Apple"}, got.PreferredBrands)

	require.NoError(t, repo.Delete(ctx, "u1"))
	got, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

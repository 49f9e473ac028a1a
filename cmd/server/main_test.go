package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"myreprise-chatbot-go/internal/config"
	"myreprise-chatbot-go/internal/service"
	"myreprise-chatbot-go/pkg/tasks"
)

func TestNewRemoteStoresWithoutRedis(t *testing.T) {
	sessions, profiles := newRemoteStores(nil)
	// 必须是无类型的 nil，服务层据此判断单进程模式
	assert.True(t, sessions == nil)
	assert.True(t, profiles == nil)
}

type fakeIndexService struct {
	loaded    int
	loadErr   error
	reindexed bool
}

func (f *fakeIndexService) Enqueue(context.Context, tasks.ItemIndexTask) error { return nil }

func (f *fakeIndexService) Reindex(context.Context) (int, int, error) {
	f.reindexed = true
	return 3, 0, nil
}

func (f *fakeIndexService) Compact() (int, error) { return 0, nil }

func (f *fakeIndexService) SaveSnapshot(context.Context) (int, error) { return 0, nil }

func (f *fakeIndexService) LoadSnapshot(context.Context) (int, error) { return f.loaded, f.loadErr }

func (f *fakeIndexService) Stats() service.IndexStats { return service.IndexStats{} }

func TestWarmIndex(t *testing.T) {
	ctx := context.Background()
	seeded := &config.Config{Index: config.IndexConfig{Backend: "memory", SeedFromCatalog: true}}

	fromSnapshot := &fakeIndexService{loaded: 5}
	warmIndex(ctx, seeded, fromSnapshot, true)
	assert.False(t, fromSnapshot.reindexed)

	brokenSnapshot := &fakeIndexService{loadErr: errors.New("minio down")}
	warmIndex(ctx, seeded, brokenSnapshot, true)
	assert.True(t, brokenSnapshot.reindexed)

	noSeed := &fakeIndexService{}
	warmIndex(ctx, &config.Config{Index: config.IndexConfig{Backend: "memory"}}, noSeed, false)
	assert.False(t, noSeed.reindexed)

	elastic := &fakeIndexService{}
	warmIndex(ctx, &config.Config{Index: config.IndexConfig{Backend: "elasticsearch", SeedFromCatalog: true}}, elastic, true)
	assert.False(t, elastic.reindexed)
}

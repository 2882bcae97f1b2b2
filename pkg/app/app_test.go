package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksync/pkg/cache"
	"stocksync/pkg/config"
	"stocksync/pkg/model"
	"stocksync/pkg/provider/decorators"
	"stocksync/pkg/store/sqlite"
	"stocksync/pkg/syncer"
)

func TestBuildProvider(t *testing.T) {
	cfg := config.Default().Provider
	cfg.Name = "tencent"
	cfg.Decorators = append(cfg.Decorators, decorators.DecoratorConfig{
		Type: decorators.CircuitBreakerType, Enabled: true, Priority: 2,
	})

	p, err := BuildProvider(NewRegistry(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "CircuitBreaker(RateLimited(tencent))", p.Name())

	cfg.Name = "sina"
	_, err = BuildProvider(NewRegistry(), cfg)
	assert.Error(t, err, "未注册的提供商应返回错误")
}

func TestNewRegistry(t *testing.T) {
	assert.Equal(t, []string{"eastmoney", "tencent"}, NewRegistry().Names())
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.Default().SetCacheFile(filepath.Join(dir, "cache.json"))
	cfg.SQLite.Enabled = true
	cfg.SQLite.Path = filepath.Join(dir, "mirror.db")
	return cfg
}

func TestNew_EmptyCache(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err, "快照缺失时应从空缓存开始")
	defer a.Close()

	assert.Equal(t, 0, a.Store.Len())
	assert.Len(t, a.Publisher.Sinks(), 2, "日志与 SQLite 下游")

	p, ok := a.Service.Profile("financial")
	require.True(t, ok)
	assert.Equal(t, cfg.Sync.Financial.Delay, p.Delay)
}

func TestNew_CorruptedCache(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Cache.File, []byte("{not json"), 0o644))
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Store.Len())
}

func seededStore(t *testing.T, path string) *cache.Store {
	store := cache.NewStore(path)
	now := model.NewTimestamp(time.Date(2025, 1, 10, 16, 0, 0, 0, time.Local))
	store.Put(model.NewSkeleton("600000", "浦发银行", "1999-11-10", model.ListingActive, now))
	store.Put(model.NewSkeleton("000001", "平安银行", "1991-04-03", model.ListingActive, now))
	return store
}

func TestMirrorSink_ExportsSnapshot(t *testing.T) {
	dir := t.TempDir()
	store := seededStore(t, filepath.Join(dir, "cache.json"))
	dbPath := filepath.Join(dir, "mirror.db")

	sink := NewMirrorSink(dbPath, store)
	assert.Equal(t, "sqlite", sink.Name())
	require.NoError(t, sink.Write(context.Background(), &syncer.Stats{}))
	require.NoError(t, sink.Close())

	mirror, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer mirror.Close()
	n, err := mirror.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestApp_ExportSQLite(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	a.Store.Put(model.NewSkeleton("300750", "宁德时代", "2018-06-11", model.ListingActive, model.NewTimestamp(time.Now())))

	n, err := a.ExportSQLite(context.Background(), filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// Package app 按配置组装缓存、数据提供商、同步服务与统计下游，供各个命令共用。
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"stocksync/pkg/cache"
	"stocksync/pkg/config"
	"stocksync/pkg/logger"
	"stocksync/pkg/provider"
	"stocksync/pkg/provider/decorators"
	"stocksync/pkg/provider/eastmoney"
	"stocksync/pkg/provider/tencent"
	"stocksync/pkg/report"
	"stocksync/pkg/store/sqlite"
	"stocksync/pkg/syncer"
)

// App 组装好的运行环境
type App struct {
	Config    *config.Config
	Store     *cache.Store
	Provider  provider.Provider
	Service   *syncer.Service
	Publisher *report.Fanout

	log *logrus.Entry
}

// NewRegistry 注册内置的数据提供商
func NewRegistry() *provider.Registry {
	r := provider.NewRegistry()
	r.Register("eastmoney", func() provider.Provider { return eastmoney.NewProvider() })
	r.Register("tencent", func() provider.Provider { return tencent.NewProvider() })
	return r
}

// BuildProvider 创建提供商、设置超时并套上配置的装饰器
func BuildProvider(registry *provider.Registry, cfg config.ProviderConfig) (provider.Provider, error) {
	base, err := registry.Create(cfg.Name)
	if err != nil {
		return nil, err
	}
	if c, ok := base.(provider.Configurable); ok && cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}

	chain := decorators.NewConfigurableDecoratorChain()
	chain.LoadFromConfig(decorators.ProviderDecoratorConfig{Decorators: cfg.Decorators})
	return chain.Apply(base)
}

// BuildPublisher 日志下游总是启用；Redis 连接失败时记录告警并跳过
func BuildPublisher(ctx context.Context, cfg *config.Config, store *cache.Store) *report.Fanout {
	log := logger.WithComponent("App")
	fanout := report.NewFanout(report.NewLogSink())

	if cfg.Redis.Enabled {
		sink, err := report.DialRedis(ctx, report.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err != nil {
			log.WithError(err).Warn("Redis 不可用，运行统计不写入 Redis")
		} else {
			fanout.Add(sink)
		}
	}

	if cfg.InfluxDB.Enabled {
		fanout.Add(report.NewInfluxSink(report.InfluxOptions{
			URL:         cfg.InfluxDB.URL,
			Token:       cfg.InfluxDB.Token,
			Org:         cfg.InfluxDB.Org,
			Bucket:      cfg.InfluxDB.Bucket,
			Measurement: cfg.InfluxDB.Measurement,
		}))
	}

	if cfg.SQLite.Enabled {
		fanout.Add(NewMirrorSink(cfg.SQLite.Path, store))
	}
	return fanout
}

// New 读取快照并组装服务
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.Init(cfg.Logger)
	log := logger.WithComponent("App")

	store := cache.NewStore(cfg.Cache.File, cache.WithDataSource(cfg.Cache.DataSource))
	if err := store.Load(); err != nil {
		var ce *cache.CacheError
		if !errors.As(err, &ce) || !ce.Warning() {
			return nil, fmt.Errorf("加载快照失败: %w", err)
		}
		// 缺失或损坏的快照按空缓存处理
		log.WithError(err).Warn("从空缓存开始")
	}

	p, err := BuildProvider(NewRegistry(), cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("创建数据提供商失败: %w", err)
	}

	publisher := BuildPublisher(ctx, cfg, store)

	opts := []syncer.ServiceOption{
		syncer.WithValidityDays(cfg.Cache.ValidityDays),
		syncer.WithPublisher(publisher),
		syncer.WithSyncOptions(syncer.WithHistoryWindow(cfg.Sync.HistoryWindow)),
	}
	for _, profile := range cfg.Profiles() {
		opts = append(opts, syncer.WithProfile(profile))
	}

	log.WithFields(logrus.Fields{
		"provider": p.Name(),
		"cache":    cfg.Cache.File,
		"sinks":    len(publisher.Sinks()),
	}).Info("运行环境已就绪")

	return &App{
		Config:    cfg,
		Store:     store,
		Provider:  p,
		Service:   syncer.NewService(store, p, opts...),
		Publisher: publisher,
		log:       log,
	}, nil
}

// Close 关闭统计下游
func (a *App) Close() {
	if err := a.Publisher.Close(); err != nil {
		a.log.WithError(err).Warn("关闭统计下游失败")
	}
}

// ExportSQLite 把当前快照导出到 SQLite
func (a *App) ExportSQLite(ctx context.Context, path string) (int, error) {
	mirror, err := sqlite.Open(path)
	if err != nil {
		return 0, err
	}
	defer mirror.Close()
	return mirror.Export(ctx, a.Store.Records())
}

// MirrorSink 每次运行结束后把快照整体导出到 SQLite
type MirrorSink struct {
	path  string
	store *cache.Store
}

// NewMirrorSink 创建镜像下游
func NewMirrorSink(path string, store *cache.Store) *MirrorSink {
	return &MirrorSink{path: path, store: store}
}

func (s *MirrorSink) Name() string { return "sqlite" }

func (s *MirrorSink) Write(ctx context.Context, _ *syncer.Stats) error {
	mirror, err := sqlite.Open(s.path)
	if err != nil {
		return err
	}
	defer mirror.Close()
	_, err = mirror.Export(ctx, s.store.Records())
	return err
}

func (s *MirrorSink) Close() error { return nil }

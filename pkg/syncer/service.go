package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"stocksync/pkg/cache"
	stockerr "stocksync/pkg/error"
	"stocksync/pkg/logger"
	"stocksync/pkg/model"
	"stocksync/pkg/provider"
)

// CodeRunInProgress 已有批次在运行
const CodeRunInProgress stockerr.ErrorCode = "RUN_IN_PROGRESS"

// ErrRunInProgress 同一缓存同时只允许一个批次
var ErrRunInProgress = stockerr.NewError(CodeRunInProgress, "another synchronization run is in progress")

// DefaultValidityDays 缓存有效期
const DefaultValidityDays = 15

// StatsPublisher 运行统计的下游
type StatsPublisher interface {
	Publish(ctx context.Context, stats *Stats) error
}

// Service 命令行与调度器使用的门面
type Service struct {
	store        *cache.Store
	provider     provider.Provider
	profiles     map[string]Profile
	validityDays int
	publisher    StatsPublisher
	syncOpts     []Option
	now          func() time.Time
	running      atomic.Bool
	log          *logrus.Entry
}

// ServiceOption 构造选项
type ServiceOption func(*Service)

// WithProfile 覆盖指定名称的批次参数（gradual / gradual-retry / financial）
func WithProfile(p Profile) ServiceOption {
	return func(s *Service) { s.profiles[p.Name] = p }
}

// WithValidityDays 设置缓存有效期
func WithValidityDays(days int) ServiceOption {
	return func(s *Service) {
		if days > 0 {
			s.validityDays = days
		}
	}
}

// WithPublisher 设置运行统计的下游
func WithPublisher(p StatsPublisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithSyncOptions 传给每次批次同步的选项
func WithSyncOptions(opts ...Option) ServiceOption {
	return func(s *Service) { s.syncOpts = append(s.syncOpts, opts...) }
}

// WithServiceClock 替换时钟
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService 创建门面
func NewService(store *cache.Store, p provider.Provider, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		provider: p,
		profiles: map[string]Profile{
			"gradual":       GradualProfile(false),
			"gradual-retry": GradualProfile(true),
			"financial":     FinancialProfile(),
		},
		validityDays: DefaultValidityDays,
		now:          time.Now,
		log:          logger.WithComponent("SyncService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store 返回底层缓存
func (s *Service) Store() *cache.Store {
	return s.store
}

// Profile 返回指定名称的批次参数
func (s *Service) Profile(name string) (Profile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// Initialize 初始化A股代码列表
func (s *Service) Initialize(ctx context.Context) (InitResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return InitResult{}, ErrRunInProgress
	}
	defer s.running.Store(false)
	return NewInitializer(s.store, s.provider, s.now).Run(ctx)
}

// Gradual 渐进式更新详细信息
func (s *Service) Gradual(ctx context.Context, withRetry bool) (*Stats, error) {
	name := "gradual"
	if withRetry {
		name = "gradual-retry"
	}
	return s.run(ctx, s.profiles[name])
}

// Financial 全量刷新行情与估值
func (s *Service) Financial(ctx context.Context) (*Stats, error) {
	return s.run(ctx, s.profiles["financial"])
}

// CheckAndUpdate 缓存过期（或 force）时更新：缓存为空先初始化，再带熔断渐进更新。
// 缓存有效时返回 nil, nil
func (s *Service) CheckAndUpdate(ctx context.Context, force bool) (*Stats, error) {
	if !force && s.store.IsValid(s.validityDays) {
		s.log.Info("股票信息缓存仍然有效，跳过更新")
		return nil, nil
	}
	if s.store.Len() == 0 {
		s.log.Info("缓存为空，先初始化A股代码列表")
		if _, err := s.Initialize(ctx); err != nil {
			return nil, err
		}
	}
	return s.Gradual(ctx, true)
}

// QueryStock 先查缓存，未命中时单独登录拉取一次并放入内存
func (s *Service) QueryStock(ctx context.Context, code string) (model.StockRecord, bool, error) {
	code = model.NormalizeCode(code)
	if rec, ok := s.store.Get(code); ok {
		return rec, true, nil
	}
	if !model.ValidCode(code) {
		return model.StockRecord{}, false, nil
	}

	var result Result
	err := provider.WithSession(ctx, s.provider, func(*provider.Session) error {
		var err error
		result, err = NewEntitySync(s.provider, DefaultHistoryWindow, s.now).Sync(ctx, code, model.StockRecord{})
		return err
	})
	if err != nil {
		return model.StockRecord{}, false, err
	}
	if result.Status != StatusUpdated {
		s.log.WithField("code", code).WithError(result.Cause).Debug("数据源未返回该股票")
		return model.StockRecord{}, false, nil
	}
	s.store.Put(result.Record)
	return result.Record, true, nil
}

// Status 缓存状态
func (s *Service) Status() cache.Status {
	return s.store.Status(s.validityDays)
}

// FilterByMarketCap 按市值区间筛选，nil 表示不限
func (s *Service) FilterByMarketCap(minCap, maxCap *float64) []model.StockRecord {
	return s.store.GetStocksByMarketCap(minCap, maxCap)
}

func (s *Service) run(ctx context.Context, profile Profile) (*Stats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	opts := append([]Option{WithClock(s.now)}, s.syncOpts...)
	stats, err := NewSynchronizer(s.store, s.provider, profile, opts...).Run(ctx)
	if s.publisher != nil && stats != nil {
		if perr := s.publisher.Publish(context.WithoutCancel(ctx), stats); perr != nil {
			s.log.WithError(perr).Warn("发布运行统计失败")
		}
	}
	return stats, err
}

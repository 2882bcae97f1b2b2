package decorators

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"stocksync/pkg/provider"
)

// RateLimitedProvider 限流装饰器，每次查询前等待令牌。
// 与批次的逐条间隔相互独立，用于约束单条记录内的多次查询
type RateLimitedProvider struct {
	*BaseDecorator
	limiter *rate.Limiter
	config  *RateLimitConfig
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"` // 两次请求的最小间隔
	Burst       int           `mapstructure:"burst"`        // 突发请求数
	Enabled     bool          `mapstructure:"enabled"`
}

// DefaultRateLimitConfig 默认限流配置
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MinInterval: 200 * time.Millisecond,
		Burst:       1,
		Enabled:     true,
	}
}

// NewRateLimitedProvider 创建限流装饰器
func NewRateLimitedProvider(base provider.Provider, config *RateLimitConfig) *RateLimitedProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if config.MinInterval > 0 {
		limit = rate.Every(config.MinInterval)
	}
	return &RateLimitedProvider{
		BaseDecorator: NewBaseDecorator(base),
		limiter:       rate.NewLimiter(limit, burst),
		config:        config,
	}
}

// Name 返回装饰器名称
func (r *RateLimitedProvider) Name() string {
	return fmt.Sprintf("RateLimited(%s)", r.base.Name())
}

// QueryBasicInfo 限流后查询
func (r *RateLimitedProvider) QueryBasicInfo(ctx context.Context, marketCode string) (*provider.BasicInfo, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.base.QueryBasicInfo(ctx, marketCode)
}

// QueryIndustry 限流后查询
func (r *RateLimitedProvider) QueryIndustry(ctx context.Context, marketCode string) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	return r.base.QueryIndustry(ctx, marketCode)
}

// QueryHistory 限流后查询
func (r *RateLimitedProvider) QueryHistory(ctx context.Context, q provider.HistoryQuery) ([]provider.HistoryRow, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.base.QueryHistory(ctx, q)
}

// QueryStockList 限流后查询
func (r *RateLimitedProvider) QueryStockList(ctx context.Context) ([]provider.BasicInfo, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.base.QueryStockList(ctx)
}

func (r *RateLimitedProvider) wait(ctx context.Context) error {
	if !r.config.Enabled {
		return nil
	}
	return r.limiter.Wait(ctx)
}

var _ provider.Decorator = (*RateLimitedProvider)(nil)

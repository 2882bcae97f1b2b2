package decorators

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/logger"
	"stocksync/pkg/provider"
)

// CircuitBreakerProvider 熔断器装饰器。
// 数据源连续失败达到阈值后直接拒绝查询，避免在接口故障期间继续发请求。
// 登录与登出不经过熔断器
type CircuitBreakerProvider struct {
	*BaseDecorator

	cb     *gobreaker.CircuitBreaker
	config *CircuitBreakerConfig
	log    *logrus.Entry

	mu    sync.RWMutex
	stats CircuitBreakerStats
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Name        string        `mapstructure:"name"`          // 熔断器名称
	MaxRequests uint32        `mapstructure:"max_requests"`  // 半开状态下的最大请求数
	Interval    time.Duration `mapstructure:"interval"`      // 统计窗口时间
	Timeout     time.Duration `mapstructure:"timeout"`       // 熔断器打开后的超时时间
	ReadyToTrip uint32        `mapstructure:"ready_to_trip"` // 触发熔断的连续失败次数
	Enabled     bool          `mapstructure:"enabled"`       // 是否启用熔断器
}

// CircuitBreakerStats 熔断器统计信息
type CircuitBreakerStats struct {
	TotalRequests     int64     `json:"total_requests"`
	SuccessfulRequest int64     `json:"successful_requests"`
	FailedRequests    int64     `json:"failed_requests"`
	RejectedRequests  int64     `json:"rejected_requests"`
	LastFailure       time.Time `json:"last_failure"`
}

// DefaultCircuitBreakerConfig 默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "StockProvider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 10,
		Enabled:     true,
	}
}

// NewCircuitBreakerProvider 创建熔断器装饰器
func NewCircuitBreakerProvider(base provider.Provider, config *CircuitBreakerConfig) *CircuitBreakerProvider {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	c := &CircuitBreakerProvider{
		BaseDecorator: NewBaseDecorator(base),
		config:        config,
		log:           logger.WithComponent("CircuitBreaker").WithField("provider", base.Name()),
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		// 空结果说明接口是通的，不计入失败
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, stockerr.ErrEmptyResult) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warnf("熔断器 %s 状态从 %v 变更为 %v", name, from, to)
		},
	})
	return c
}

// Name 返回装饰器名称
func (c *CircuitBreakerProvider) Name() string {
	return fmt.Sprintf("CircuitBreaker(%s)", c.base.Name())
}

// QueryBasicInfo 经熔断器查询基本信息
func (c *CircuitBreakerProvider) QueryBasicInfo(ctx context.Context, marketCode string) (*provider.BasicInfo, error) {
	result, err := c.execute("query_stock_basic", func() (interface{}, error) {
		return c.base.QueryBasicInfo(ctx, marketCode)
	})
	if err != nil {
		return nil, err
	}
	return result.(*provider.BasicInfo), nil
}

// QueryIndustry 经熔断器查询行业
func (c *CircuitBreakerProvider) QueryIndustry(ctx context.Context, marketCode string) (string, error) {
	result, err := c.execute("query_stock_industry", func() (interface{}, error) {
		return c.base.QueryIndustry(ctx, marketCode)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// QueryHistory 经熔断器查询日线
func (c *CircuitBreakerProvider) QueryHistory(ctx context.Context, q provider.HistoryQuery) ([]provider.HistoryRow, error) {
	result, err := c.execute("query_history_k_data", func() (interface{}, error) {
		return c.base.QueryHistory(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return result.([]provider.HistoryRow), nil
}

// QueryStockList 经熔断器查询证券列表
func (c *CircuitBreakerProvider) QueryStockList(ctx context.Context) ([]provider.BasicInfo, error) {
	result, err := c.execute("query_stock_list", func() (interface{}, error) {
		return c.base.QueryStockList(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]provider.BasicInfo), nil
}

// execute 通过熔断器执行请求，熔断拒绝映射为 QUERY_FAILED
func (c *CircuitBreakerProvider) execute(query string, fn func() (interface{}, error)) (interface{}, error) {
	if !c.config.Enabled {
		return fn()
	}

	c.mu.Lock()
	c.stats.TotalRequests++
	c.mu.Unlock()

	result, err := c.cb.Execute(fn)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.stats.RejectedRequests++
		return nil, stockerr.NewQueryError(query, "circuit_open", err.Error())
	case err != nil:
		c.stats.FailedRequests++
		c.stats.LastFailure = time.Now()
		return nil, err
	}
	c.stats.SuccessfulRequest++
	return result, nil
}

// GetState 获取熔断器当前状态
func (c *CircuitBreakerProvider) GetState() gobreaker.State {
	return c.cb.State()
}

// GetCounts 获取熔断器计数信息
func (c *CircuitBreakerProvider) GetCounts() gobreaker.Counts {
	return c.cb.Counts()
}

// GetStats 获取统计信息
func (c *CircuitBreakerProvider) GetStats() CircuitBreakerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// IsOpen 检查熔断器是否处于打开状态
func (c *CircuitBreakerProvider) IsOpen() bool {
	return c.cb.State() == gobreaker.StateOpen
}

var _ provider.Decorator = (*CircuitBreakerProvider)(nil)

package provider

import (
	"context"
	"time"
)

// Provider 外部数据源契约。同一进程内只允许一个已登录会话，
// 所有查询必须在 Login 成功之后、Logout 之前进行。
type Provider interface {
	// Name 返回提供商名称，例如 "eastmoney" 或 "tencent"。
	Name() string

	// Login 建立会话，失败时返回 AUTH_FAILED 错误。
	Login(ctx context.Context) error

	// Logout 结束会话。
	Logout(ctx context.Context) error

	// QueryBasicInfo 查询基本信息，marketCode 形如 "sh.600000"。
	// 返回 nil, nil 表示数据源没有这只股票。
	QueryBasicInfo(ctx context.Context, marketCode string) (*BasicInfo, error)

	// QueryIndustry 查询所属行业，没有行业分类时返回空串。
	QueryIndustry(ctx context.Context, marketCode string) (string, error)

	// QueryHistory 查询日线及估值数据，按日期升序，最新一行在最后。
	QueryHistory(ctx context.Context, q HistoryQuery) ([]HistoryRow, error)

	// QueryStockList 查询全部证券列表，用于初始化缓存。
	QueryStockList(ctx context.Context) ([]BasicInfo, error)
}

// Configurable 可配置接口
// 支持动态配置的提供商可以实现此接口
type Configurable interface {
	// SetTimeout 设置请求超时时间
	SetTimeout(timeout time.Duration)

	// SetMaxRetries 设置最大重试次数
	SetMaxRetries(retries int)
}

// Decorator 装饰器接口，可取回被装饰的基础 Provider
type Decorator interface {
	Provider
	GetBaseProvider() Provider
}

package decorators

import (
	"context"

	"stocksync/pkg/provider"
)

// BaseDecorator 装饰器基础实现，所有方法直接转发给被装饰的 Provider
type BaseDecorator struct {
	base provider.Provider
}

// NewBaseDecorator 创建基础装饰器
func NewBaseDecorator(base provider.Provider) *BaseDecorator {
	return &BaseDecorator{base: base}
}

// Name 实现 Provider 接口
func (d *BaseDecorator) Name() string {
	return d.base.Name()
}

// GetBaseProvider 实现 Decorator 接口
func (d *BaseDecorator) GetBaseProvider() provider.Provider {
	return d.base
}

// Login 实现 Provider 接口
func (d *BaseDecorator) Login(ctx context.Context) error {
	return d.base.Login(ctx)
}

// Logout 实现 Provider 接口
func (d *BaseDecorator) Logout(ctx context.Context) error {
	return d.base.Logout(ctx)
}

// QueryBasicInfo 实现 Provider 接口
func (d *BaseDecorator) QueryBasicInfo(ctx context.Context, marketCode string) (*provider.BasicInfo, error) {
	return d.base.QueryBasicInfo(ctx, marketCode)
}

// QueryIndustry 实现 Provider 接口
func (d *BaseDecorator) QueryIndustry(ctx context.Context, marketCode string) (string, error) {
	return d.base.QueryIndustry(ctx, marketCode)
}

// QueryHistory 实现 Provider 接口
func (d *BaseDecorator) QueryHistory(ctx context.Context, q provider.HistoryQuery) ([]provider.HistoryRow, error) {
	return d.base.QueryHistory(ctx, q)
}

// QueryStockList 实现 Provider 接口
func (d *BaseDecorator) QueryStockList(ctx context.Context) ([]provider.BasicInfo, error) {
	return d.base.QueryStockList(ctx)
}

// Unwrap 逐层剥去装饰器，返回最内层的数据源
func Unwrap(p provider.Provider) provider.Provider {
	for {
		d, ok := p.(provider.Decorator)
		if !ok {
			return p
		}
		p = d.GetBaseProvider()
	}
}

// DecoratorChain 装饰器链
// 用于组合多个装饰器
type DecoratorChain struct {
	decorators []func(provider.Provider) provider.Provider
}

// NewDecoratorChain 创建装饰器链
func NewDecoratorChain() *DecoratorChain {
	return &DecoratorChain{}
}

// AddDecorator 添加装饰器到链中
func (dc *DecoratorChain) AddDecorator(decorator func(provider.Provider) provider.Provider) *DecoratorChain {
	dc.decorators = append(dc.decorators, decorator)
	return dc
}

// Apply 应用装饰器链到指定的 Provider，先添加的在最内层
func (dc *DecoratorChain) Apply(base provider.Provider) provider.Provider {
	p := base
	for _, decorator := range dc.decorators {
		p = decorator(p)
	}
	return p
}

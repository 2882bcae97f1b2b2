package decorators

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"stocksync/pkg/provider"
)

// DecoratorType 装饰器类型枚举
type DecoratorType string

const (
	RateLimitType      DecoratorType = "rate_limit"
	CircuitBreakerType DecoratorType = "circuit_breaker"
)

// DecoratorConfig 装饰器配置
type DecoratorConfig struct {
	Type     DecoratorType          `mapstructure:"type"`
	Enabled  bool                   `mapstructure:"enabled"`
	Priority int                    `mapstructure:"priority"` // 数值越小越靠内层
	Config   map[string]interface{} `mapstructure:"config"`
}

// ProviderDecoratorConfig 提供商装饰器完整配置
type ProviderDecoratorConfig struct {
	Decorators []DecoratorConfig `mapstructure:"decorators"`
}

// ConfigurableDecoratorChain 可配置的装饰器链
type ConfigurableDecoratorChain struct {
	decorators []DecoratorConfig
}

// NewConfigurableDecoratorChain 创建可配置装饰器链
func NewConfigurableDecoratorChain() *ConfigurableDecoratorChain {
	return &ConfigurableDecoratorChain{}
}

// LoadFromViper 从 Viper 配置加载装饰器链配置
func (cdc *ConfigurableDecoratorChain) LoadFromViper(v *viper.Viper, configKey string) error {
	var config ProviderDecoratorConfig
	if err := v.UnmarshalKey(configKey, &config); err != nil {
		return fmt.Errorf("无法解析装饰器配置: %w", err)
	}
	cdc.decorators = config.Decorators
	return nil
}

// LoadFromConfig 从配置结构体加载装饰器链配置
func (cdc *ConfigurableDecoratorChain) LoadFromConfig(config ProviderDecoratorConfig) {
	cdc.decorators = config.Decorators
}

// AddDecorator 添加装饰器配置
func (cdc *ConfigurableDecoratorChain) AddDecorator(decoratorConfig DecoratorConfig) {
	cdc.decorators = append(cdc.decorators, decoratorConfig)
}

// Apply 按优先级依次包装数据源
func (cdc *ConfigurableDecoratorChain) Apply(base provider.Provider) (provider.Provider, error) {
	current := base
	for _, dc := range cdc.getSortedEnabledDecorators() {
		decorated, err := CreateDecorator(dc.Type, current, dc.Config)
		if err != nil {
			return nil, fmt.Errorf("无法创建装饰器 %s: %w", dc.Type, err)
		}
		current = decorated
	}
	return current, nil
}

// GetAppliedDecorators 获取将要应用的装饰器列表
func (cdc *ConfigurableDecoratorChain) GetAppliedDecorators() []DecoratorType {
	sorted := cdc.getSortedEnabledDecorators()
	types := make([]DecoratorType, len(sorted))
	for i, d := range sorted {
		types[i] = d.Type
	}
	return types
}

func (cdc *ConfigurableDecoratorChain) getSortedEnabledDecorators() []DecoratorConfig {
	enabled := make([]DecoratorConfig, 0, len(cdc.decorators))
	for _, d := range cdc.decorators {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})
	return enabled
}

// CreateDecorator 根据类型与配置表创建装饰器，未给出的配置项取默认值
func CreateDecorator(t DecoratorType, base provider.Provider, config map[string]interface{}) (provider.Provider, error) {
	switch t {
	case RateLimitType:
		c := DefaultRateLimitConfig()
		if v, ok := config["min_interval"]; ok {
			d, err := cast.ToDurationE(v)
			if err != nil {
				return nil, fmt.Errorf("min_interval: %w", err)
			}
			c.MinInterval = d
		}
		if v, ok := config["burst"]; ok {
			c.Burst = cast.ToInt(v)
		}
		return NewRateLimitedProvider(base, c), nil

	case CircuitBreakerType:
		c := DefaultCircuitBreakerConfig()
		c.Name = base.Name()
		if v, ok := config["name"]; ok {
			c.Name = cast.ToString(v)
		}
		if v, ok := config["max_requests"]; ok {
			c.MaxRequests = cast.ToUint32(v)
		}
		if v, ok := config["ready_to_trip"]; ok {
			c.ReadyToTrip = cast.ToUint32(v)
		}
		for key, dst := range map[string]*time.Duration{"interval": &c.Interval, "timeout": &c.Timeout} {
			if v, ok := config[key]; ok {
				d, err := cast.ToDurationE(v)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				*dst = d
			}
		}
		return NewCircuitBreakerProvider(base, c), nil
	}
	return nil, fmt.Errorf("不支持的装饰器类型: %s", t)
}

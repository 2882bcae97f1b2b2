package syncer

import "time"

// Mode 待更新集合的计算方式
type Mode string

const (
	// ModeGradual 只更新尚未完成详细信息更新的股票
	ModeGradual Mode = "gradual"
	// ModeFinancial 刷新全部股票的行情与估值
	ModeFinancial Mode = "financial"
)

// Profile 批次参数
type Profile struct {
	Name             string          `mapstructure:"name"`
	Mode             Mode            `mapstructure:"mode"`
	Delay            time.Duration   `mapstructure:"delay"`             // 两条之间的间隔
	FailureThreshold int             `mapstructure:"failure_threshold"` // 连续失败阈值，0 表示不熔断
	Backoff          []time.Duration `mapstructure:"backoff"`           // 熔断暂停表
	CheckpointEvery  int             `mapstructure:"checkpoint_every"`  // 每成功 K 条保存一次
}

// GradualProfile 渐进式更新。withRetry 时启用熔断退避
func GradualProfile(withRetry bool) Profile {
	if !withRetry {
		return Profile{
			Name:            "gradual",
			Mode:            ModeGradual,
			Delay:           time.Second,
			CheckpointEvery: 10,
		}
	}
	return Profile{
		Name:             "gradual-retry",
		Mode:             ModeGradual,
		Delay:            10 * time.Second,
		FailureThreshold: 3,
		Backoff:          seconds(10, 15, 20, 30),
		CheckpointEvery:  10,
	}
}

// FinancialProfile 全量刷新行情与估值
func FinancialProfile() Profile {
	return Profile{
		Name:             "financial",
		Mode:             ModeFinancial,
		Delay:            10 * time.Second,
		FailureThreshold: 3,
		Backoff:          seconds(20, 60, 120, 300),
		CheckpointEvery:  100,
	}
}

func seconds(values ...int) []time.Duration {
	out := make([]time.Duration, len(values))
	for i, v := range values {
		out[i] = time.Duration(v) * time.Second
	}
	return out
}

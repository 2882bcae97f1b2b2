package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// JobMode 任务执行的同步模式
type JobMode string

const (
	ModeInitialize   JobMode = "initialize"
	ModeGradual      JobMode = "gradual"
	ModeGradualRetry JobMode = "gradual-retry"
	ModeFinancial    JobMode = "financial"
	ModeCheck        JobMode = "check" // 快照过期时才更新
)

// JobConfig 定义单个任务的配置
type JobConfig struct {
	Name     string        `mapstructure:"name" json:"name"`
	Enabled  bool          `mapstructure:"enabled" json:"enabled"`
	Schedule string        `mapstructure:"schedule" json:"schedule"` // 秒级 cron 表达式
	Mode     JobMode       `mapstructure:"mode" json:"mode"`
	Force    bool          `mapstructure:"force" json:"force"`     // check 模式下忽略有效期
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"` // 0 表示不限时

	TradingDaysOnly bool `mapstructure:"trading_days_only" json:"trading_days_only"`
	AfterCloseOnly  bool `mapstructure:"after_close_only" json:"after_close_only"` // 只在交易日收盘后执行
}

// JobsConfig 定义整个任务配置文件结构
type JobsConfig struct {
	Jobs []JobConfig `mapstructure:"jobs" json:"jobs"`
}

// Job 表示一个已注册的任务
type Job struct {
	ID         string
	Config     JobConfig
	EntryID    cron.EntryID
	Status     JobStatus
	LastRun    *time.Time
	NextRun    *time.Time
	RunCount   int64
	SkipCount  int64
	ErrorCount int64
	LastError  error
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusError    JobStatus = "error"
	JobStatusDisabled JobStatus = "disabled"
)

// JobExecutor 任务执行器接口
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"stocksync/pkg/logger"
	"stocksync/pkg/syncer"
	"stocksync/pkg/timing"
)

// ErrSkipped 任务条件不满足或已有同步在运行，本次不执行
var ErrSkipped = errors.New("job skipped")

// SyncRunner 同步服务提供的操作，由 syncer.Service 实现
type SyncRunner interface {
	Initialize(ctx context.Context) (syncer.InitResult, error)
	Gradual(ctx context.Context, withRetry bool) (*syncer.Stats, error)
	Financial(ctx context.Context) (*syncer.Stats, error)
	CheckAndUpdate(ctx context.Context, force bool) (*syncer.Stats, error)
}

// SyncExecutor 把任务模式映射到同步服务
type SyncExecutor struct {
	runner   SyncRunner
	calendar *timing.Calendar
	log      *logrus.Entry
}

// NewSyncExecutor 创建执行器
func NewSyncExecutor(runner SyncRunner, calendar *timing.Calendar) *SyncExecutor {
	if calendar == nil {
		calendar = timing.NewCalendar(nil)
	}
	return &SyncExecutor{runner: runner, calendar: calendar, log: logger.WithComponent("SyncExecutor")}
}

// Execute 实现 JobExecutor
func (e *SyncExecutor) Execute(ctx context.Context, job *Job) error {
	cfg := job.Config
	now := e.calendar.Now()
	if cfg.TradingDaysOnly && !e.calendar.IsTradingDay(now) {
		return ErrSkipped
	}
	if cfg.AfterCloseOnly && !e.calendar.IsAfterClose() {
		return ErrSkipped
	}

	log := e.log.WithFields(logrus.Fields{"job": cfg.Name, "mode": cfg.Mode})

	var (
		stats *syncer.Stats
		err   error
	)
	switch cfg.Mode {
	case ModeInitialize:
		var res syncer.InitResult
		res, err = e.runner.Initialize(ctx)
		if err == nil {
			log.WithFields(logrus.Fields{"listed": res.Listed, "added": res.Added, "skipped": res.Skipped}).Info("初始化完成")
		}
	case ModeGradual:
		stats, err = e.runner.Gradual(ctx, false)
	case ModeGradualRetry:
		stats, err = e.runner.Gradual(ctx, true)
	case ModeFinancial:
		stats, err = e.runner.Financial(ctx)
	case ModeCheck:
		stats, err = e.runner.CheckAndUpdate(ctx, cfg.Force)
		if err == nil && stats == nil {
			log.Info("快照仍在有效期内")
		}
	default:
		return fmt.Errorf("未知的任务模式: %s", cfg.Mode)
	}

	if errors.Is(err, syncer.ErrRunInProgress) {
		log.Warn("已有同步在运行")
		return ErrSkipped
	}
	if err != nil {
		return err
	}
	if stats != nil && stats.Aborted {
		return fmt.Errorf("同步中止: %s", stats.AbortReason)
	}
	return nil
}

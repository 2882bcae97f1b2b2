package syncer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/logger"
	"stocksync/pkg/model"
	"stocksync/pkg/provider"
)

// RecordStore 批次同步所需的缓存操作
type RecordStore interface {
	Get(code string) (model.StockRecord, bool)
	Put(rec model.StockRecord)
	Pending(detailOnly bool) []string
	Save() error
}

// State 批次状态
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePausedBackoff
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePausedBackoff:
		return "paused_backoff"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats 一次运行的统计，任何退出路径都会返回
type Stats struct {
	RunID         string        `json:"run_id"`
	Mode          Mode          `json:"mode"`
	Profile       string        `json:"profile"`
	Total         int           `json:"total"`
	Processed     int           `json:"processed"`
	Successes     int           `json:"successes"`
	Failures      int           `json:"failures"`
	Checkpoints   int           `json:"checkpoints"`
	BackoffPauses int           `json:"backoff_pauses"`
	Renewals      int           `json:"renewals"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Duration      time.Duration `json:"duration"`
	Aborted       bool          `json:"aborted"`
	AbortReason   string        `json:"abort_reason,omitempty"`
}

// SuccessRate 成功数占待更新总数的百分比，中途终止时未处理的也计入分母
func (s *Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Total) * 100
}

// Sleeper 可被上下文打断的等待
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep 默认等待实现
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BackoffPause 连续失败 n 次（n >= threshold）时的暂停时长
func BackoffPause(table []time.Duration, threshold, n int) time.Duration {
	if len(table) == 0 {
		return 0
	}
	idx := n - threshold
	if idx < 0 {
		idx = 0
	}
	if idx > len(table)-1 {
		idx = len(table) - 1
	}
	return table[idx]
}

// Synchronizer 批次同步状态机：逐条拉取、熔断退避、定期存盘、会话续期
type Synchronizer struct {
	store    RecordStore
	provider provider.Provider
	entity   *EntitySync
	profile  Profile
	sleep    Sleeper
	now      func() time.Time
	state    atomic.Int32
	log      *logrus.Entry
}

// Option 构造选项
type Option func(*Synchronizer)

// WithSleeper 替换等待实现
func WithSleeper(s Sleeper) Option {
	return func(b *Synchronizer) { b.sleep = s }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(b *Synchronizer) { b.now = now }
}

// WithHistoryWindow 替换日线回看窗口
func WithHistoryWindow(window time.Duration) Option {
	return func(b *Synchronizer) { b.entity.window = window }
}

// NewSynchronizer 创建批次同步器
func NewSynchronizer(store RecordStore, p provider.Provider, profile Profile, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    store,
		provider: p,
		profile:  profile,
		sleep:    ContextSleep,
		now:      time.Now,
		log:      logger.WithComponent("Synchronizer").WithField("mode", profile.Mode),
	}
	s.entity = NewEntitySync(p, DefaultHistoryWindow, func() time.Time { return s.now() })
	s.entity.forceBasic = profile.Mode == ModeGradual
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State 当前状态
func (s *Synchronizer) State() State {
	return State(s.state.Load())
}

func (s *Synchronizer) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to {
		s.log.Infof("状态 %s -> %s", from, to)
	}
}

// Run 执行一次批次同步。只有登录或续期失败会返回 error，统计总是返回
func (s *Synchronizer) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		RunID:     uuid.NewString(),
		Mode:      s.profile.Mode,
		Profile:   s.profile.Name,
		StartedAt: s.now(),
	}
	log := s.log.WithField("run_id", stats.RunID)
	s.state.Store(int32(StateIdle))

	pending := s.store.Pending(s.profile.Mode == ModeGradual)
	stats.Total = len(pending)
	if len(pending) == 0 {
		log.Info("没有待更新的股票")
		s.setState(StateCompleted)
		s.finish(stats)
		return stats, nil
	}

	session := provider.NewSession(s.provider)
	if err := session.Open(ctx); err != nil {
		log.WithError(err).Error("登录失败，终止本次运行")
		s.abort(stats, err.Error())
		s.finish(stats)
		return stats, err
	}
	defer session.Close(context.WithoutCancel(ctx))

	s.setState(StateRunning)
	log.Infof("开始%s更新，待更新股票数：%d", s.profile.Name, len(pending))

	runErr := s.loop(ctx, log, session, pending, stats)

	if err := s.store.Save(); err != nil {
		log.WithError(err).Error("最终保存缓存失败")
	}
	if s.State() != StateAborted {
		s.setState(StateCompleted)
	}
	s.finish(stats)
	log.WithFields(logrus.Fields{
		"successes": stats.Successes,
		"failures":  stats.Failures,
		"duration":  stats.Duration.Round(time.Millisecond),
	}).Infof("更新结束，成功率 %.1f%%", stats.SuccessRate())
	return stats, runErr
}

func (s *Synchronizer) loop(ctx context.Context, log *logrus.Entry, session *provider.Session, pending []string, stats *Stats) error {
	consecutive := 0
	threshold := s.profile.FailureThreshold
	for i, code := range pending {
		if ctx.Err() != nil {
			s.abort(stats, ctx.Err().Error())
			return nil
		}

		log.Debugf("正在更新股票 %s (%d/%d) [连续失败: %d]", code, i+1, len(pending), consecutive)
		result, err := s.syncOne(ctx, code)
		if ctx.Err() != nil {
			s.abort(stats, ctx.Err().Error())
			return nil
		}
		stats.Processed++

		if err == nil && result.Status == StatusUpdated {
			s.store.Put(result.Record)
			consecutive = 0
			stats.Successes++
			log.WithField("code", code).Infof("成功更新 %s", result.Record.Name)
			if k := s.profile.CheckpointEvery; k > 0 && stats.Successes%k == 0 {
				stats.Checkpoints++
				if err := s.store.Save(); err != nil {
					log.WithError(err).Warn("阶段保存失败，下次保存时重试")
				} else {
					log.Infof("已更新%d只股票信息，已保存缓存", stats.Successes)
				}
			}
		} else {
			consecutive++
			stats.Failures++
			if err == nil {
				err = result.Cause
			}
			log.WithField("code", code).WithError(err).Warnf("更新失败 (失败计数: %d)", consecutive)
		}

		if threshold > 0 && consecutive >= threshold {
			pause := BackoffPause(s.profile.Backoff, threshold, consecutive)
			stats.BackoffPauses++
			s.setState(StatePausedBackoff)
			log.Warnf("连续失败%d次，暂停%s后重新登录", consecutive, pause)
			if err := s.sleep(ctx, pause); err != nil {
				s.abort(stats, err.Error())
				return nil
			}
			if err := session.Renew(ctx); err != nil {
				s.abort(stats, err.Error())
				return err
			}
			stats.Renewals++
			consecutive = 0
			s.setState(StateRunning)
			continue
		}

		if i < len(pending)-1 && s.profile.Delay > 0 {
			if err := s.sleep(ctx, s.profile.Delay); err != nil {
				s.abort(stats, err.Error())
				return nil
			}
		}
	}
	return nil
}

// syncOne 执行单条同步，panic 视为本条失败
func (s *Synchronizer) syncOne(ctx context.Context, code string) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = stockerr.Errorf(stockerr.CodeInvalidRecord, "panic while syncing %s: %v", code, r)
		}
	}()
	existing, _ := s.store.Get(code)
	return s.entity.Sync(ctx, code, existing)
}

func (s *Synchronizer) abort(stats *Stats, reason string) {
	stats.Aborted = true
	stats.AbortReason = reason
	s.setState(StateAborted)
}

func (s *Synchronizer) finish(stats *Stats) {
	stats.FinishedAt = s.now()
	stats.Duration = stats.FinishedAt.Sub(stats.StartedAt)
}

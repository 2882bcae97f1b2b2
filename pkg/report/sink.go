// Package report 把每次同步运行的统计发布到日志、Redis Stream 与 InfluxDB。
package report

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"stocksync/pkg/logger"
	"stocksync/pkg/syncer"
)

// Sink 运行统计的一个下游
type Sink interface {
	Name() string
	Write(ctx context.Context, stats *syncer.Stats) error
	Close() error
}

// Fanout 并发写入所有下游，实现 syncer.StatsPublisher
type Fanout struct {
	sinks []Sink
	log   *logrus.Entry
}

// NewFanout 创建分发器
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, log: logger.WithComponent("StatsFanout")}
}

// Add 追加下游
func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

// Sinks 当前下游
func (f *Fanout) Sinks() []Sink {
	return f.sinks
}

// Publish 写入全部下游；单个下游失败不影响其它下游，错误合并后返回
func (f *Fanout) Publish(ctx context.Context, stats *syncer.Stats) error {
	p := pool.New().WithErrors().WithContext(ctx)
	for _, s := range f.sinks {
		sink := s
		p.Go(func(ctx context.Context) error {
			if err := sink.Write(ctx, stats); err != nil {
				f.log.WithError(err).WithField("sink", sink.Name()).Warn("运行统计写入失败")
				return fmt.Errorf("%s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	return p.Wait()
}

// Close 关闭全部下游
func (f *Fanout) Close() error {
	var firstErr error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogSink 把统计写入日志
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink 创建日志下游
func NewLogSink() *LogSink {
	return &LogSink{log: logger.WithComponent("RunReport")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, stats *syncer.Stats) error {
	entry := s.log.WithFields(logrus.Fields{
		"run_id":         stats.RunID,
		"mode":           stats.Mode,
		"profile":        stats.Profile,
		"total":          stats.Total,
		"processed":      stats.Processed,
		"successes":      stats.Successes,
		"failures":       stats.Failures,
		"checkpoints":    stats.Checkpoints,
		"backoff_pauses": stats.BackoffPauses,
		"renewals":       stats.Renewals,
		"duration":       stats.Duration.String(),
		"success_rate":   fmt.Sprintf("%.1f%%", stats.SuccessRate()),
	})
	if stats.Aborted {
		entry.WithField("reason", stats.AbortReason).Warn("同步运行中止")
		return nil
	}
	entry.Info("同步运行完成")
	return nil
}

func (s *LogSink) Close() error { return nil }

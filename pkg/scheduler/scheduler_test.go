package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockJobExecutor 模拟任务执行器
type MockJobExecutor struct {
	mu           sync.Mutex
	executedJobs []string
	err          error
}

func (m *MockJobExecutor) Execute(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executedJobs = append(m.executedJobs, job.Config.Name)
	return m.err
}

func (m *MockJobExecutor) executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.executedJobs...)
}

func validJob(name string) JobConfig {
	return JobConfig{Name: name, Enabled: true, Schedule: "0 0 17 * * 1-5", Mode: ModeFinancial}
}

func writeJobs(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestJobScheduler_LoadConfig(t *testing.T) {
	tests := []struct {
		name       string
		configYAML string
		expectJobs int
	}{
		{
			name: "有效配置",
			configYAML: `
jobs:
  - name: "financial-daily"
    enabled: true
    schedule: "0 30 17 * * 1-5"
    mode: financial
    after_close_only: true
  - name: "gradual-night"
    enabled: false
    schedule: "0 0 2 * * *"
    mode: gradual-retry
    timeout: 6h
`,
			expectJobs: 2,
		},
		{
			name: "无效的 cron 表达式被跳过",
			configYAML: `
jobs:
  - name: "bad-cron"
    enabled: true
    schedule: "invalid-cron"
    mode: gradual
  - name: "check"
    enabled: true
    schedule: "@every 1h"
    mode: check
`,
			expectJobs: 1,
		},
		{
			name: "未知模式被跳过",
			configYAML: `
jobs:
  - name: "unknown"
    enabled: true
    schedule: "@daily"
    mode: realtime
`,
			expectJobs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewJobScheduler(&MockJobExecutor{})
			require.NoError(t, s.LoadConfig(writeJobs(t, tt.configYAML)))
			assert.Len(t, s.GetAllJobs(), tt.expectJobs)
		})
	}
}

func TestJobScheduler_LoadConfigFields(t *testing.T) {
	s := NewJobScheduler(&MockJobExecutor{})
	require.NoError(t, s.LoadConfig(writeJobs(t, `
jobs:
  - name: "gradual-night"
    enabled: false
    schedule: "0 0 2 * * *"
    mode: gradual-retry
    timeout: 6h
    trading_days_only: true
`)))

	job, err := s.GetJob("gradual-night")
	require.NoError(t, err)
	assert.Equal(t, ModeGradualRetry, job.Config.Mode)
	assert.Equal(t, 6*time.Hour, job.Config.Timeout)
	assert.True(t, job.Config.TradingDaysOnly)
	assert.Equal(t, JobStatusDisabled, job.Status)
	assert.NotEmpty(t, job.ID)
}

func TestJobScheduler_LoadConfigMissingFile(t *testing.T) {
	s := NewJobScheduler(&MockJobExecutor{})
	assert.Error(t, s.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestJobScheduler_AddRemoveJob(t *testing.T) {
	s := NewJobScheduler(&MockJobExecutor{})

	require.NoError(t, s.AddJob(validJob("a")))
	assert.Error(t, s.AddJob(validJob("a")), "重复的任务名称应返回错误")

	job, err := s.GetJob("a")
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.NotZero(t, job.EntryID)

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"), "移除不存在的任务应返回错误")
	_, err = s.GetJob("a")
	assert.Error(t, err)
}

func TestValidateJobConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *JobConfig)
		valid  bool
	}{
		{"有效配置", func(c *JobConfig) {}, true},
		{"描述符调度", func(c *JobConfig) { c.Schedule = "@every 30m" }, true},
		{"名称为空", func(c *JobConfig) { c.Name = "" }, false},
		{"调度为空", func(c *JobConfig) { c.Schedule = "" }, false},
		{"五段 cron 表达式", func(c *JobConfig) { c.Schedule = "0 17 * * 1-5" }, false},
		{"模式为空", func(c *JobConfig) { c.Mode = "" }, false},
		{"未知模式", func(c *JobConfig) { c.Mode = "realtime" }, false},
		{"超时为负", func(c *JobConfig) { c.Timeout = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validJob("job")
			tt.mutate(&cfg)
			if tt.valid {
				assert.NoError(t, ValidateJobConfig(cfg))
			} else {
				assert.Error(t, ValidateJobConfig(cfg))
			}
		})
	}
}

func TestJobScheduler_RunJob(t *testing.T) {
	executor := &MockJobExecutor{}
	s := NewJobScheduler(executor)
	require.NoError(t, s.AddJob(validJob("manual")))

	disabled := validJob("off")
	disabled.Enabled = false
	require.NoError(t, s.AddJob(disabled))

	require.NoError(t, s.RunJob("manual"))
	assert.Error(t, s.RunJob("off"), "禁用的任务不能手动执行")
	assert.Error(t, s.RunJob("missing"))

	require.Eventually(t, func() bool {
		job, _ := s.GetJob("manual")
		return job.RunCount == 1 && job.Status == JobStatusPending
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"manual"}, executor.executed())
	require.NoError(t, s.Stop(time.Second))
}

func TestJobScheduler_ExecuteJobOutcomes(t *testing.T) {
	executor := &MockJobExecutor{err: errors.New("boom")}
	s := NewJobScheduler(executor)
	require.NoError(t, s.AddJob(validJob("j")))
	job := s.jobs["j"]

	s.executeJob(job)
	assert.Equal(t, JobStatusError, job.Status)
	assert.EqualError(t, job.LastError, "boom")
	assert.Equal(t, int64(1), job.ErrorCount)

	executor.err = ErrSkipped
	s.executeJob(job)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, int64(1), job.SkipCount)

	executor.err = nil
	s.executeJob(job)
	assert.Nil(t, job.LastError)
	assert.Equal(t, int64(3), job.RunCount)

	// 运行中的任务不会被重复触发
	job.Status = JobStatusRunning
	s.executeJob(job)
	assert.Equal(t, int64(3), job.RunCount)
}

func TestJobScheduler_TimeoutContext(t *testing.T) {
	var deadline bool
	exec := executorFunc(func(ctx context.Context, job *Job) error {
		_, deadline = ctx.Deadline()
		return nil
	})
	s := NewJobScheduler(exec)
	cfg := validJob("t")
	cfg.Timeout = time.Minute
	require.NoError(t, s.AddJob(cfg))
	s.executeJob(s.jobs["t"])
	assert.True(t, deadline, "配置了超时的任务应带截止时间")
}

func TestJobScheduler_StartStop(t *testing.T) {
	s := NewJobScheduler(nil)
	assert.Error(t, s.Start(), "未设置执行器时启动应失败")

	s = NewJobScheduler(&MockJobExecutor{})
	require.NoError(t, s.AddJob(validJob("a")))
	require.NoError(t, s.Start())

	job, err := s.GetJob("a")
	require.NoError(t, err)
	require.NotNil(t, job.NextRun, "启动后应计算下次运行时间")
	assert.True(t, job.NextRun.After(time.Now()))

	assert.NoError(t, s.Stop(time.Second))
}

func TestJobScheduler_CronFires(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过计时测试")
	}
	executor := &MockJobExecutor{}
	s := NewJobScheduler(executor)
	cfg := validJob("every-second")
	cfg.Schedule = "* * * * * *"
	require.NoError(t, s.AddJob(cfg))
	require.NoError(t, s.Start())
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool { return len(executor.executed()) >= 1 }, 3*time.Second, 50*time.Millisecond)
}

type executorFunc func(ctx context.Context, job *Job) error

func (f executorFunc) Execute(ctx context.Context, job *Job) error { return f(ctx, job) }

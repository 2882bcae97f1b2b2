// Package scheduler 按 cron 表达式定时触发同步任务。
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"stocksync/pkg/logger"
)

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// JobScheduler 任务调度器
type JobScheduler struct {
	cron     *cron.Cron
	jobs     map[string]*Job
	executor JobExecutor
	mu       sync.RWMutex
	log      *logrus.Entry
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewJobScheduler 创建新的任务调度器
func NewJobScheduler(executor JobExecutor) *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		cron:     cron.New(cron.WithParser(cronParser)),
		jobs:     make(map[string]*Job),
		executor: executor,
		log:      logger.WithComponent("Scheduler"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// LoadConfig 从任务文件加载配置，无效的任务记录日志后跳过
func (s *JobScheduler) LoadConfig(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("配置文件不存在: %s", configPath)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config JobsConfig
	if err := v.Unmarshal(&config); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, jobConfig := range config.Jobs {
		if err := ValidateJobConfig(jobConfig); err != nil {
			s.log.WithError(err).Warnf("跳过无效任务配置: %s", jobConfig.Name)
			continue
		}
		if err := s.addJobInternal(jobConfig); err != nil {
			s.log.WithError(err).Errorf("添加任务失败: %s", jobConfig.Name)
		}
	}

	s.log.Infof("成功加载 %d 个任务配置", len(s.jobs))
	return nil
}

// Start 启动调度器
func (s *JobScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.executor == nil {
		return fmt.Errorf("任务执行器未设置")
	}
	s.cron.Start()
	s.updateNextRunTimes()
	s.log.Info("任务调度器已启动")
	return nil
}

// Stop 停止调度器，取消运行中的任务并等待其退出
func (s *JobScheduler) Stop(timeout time.Duration) error {
	s.cancel()
	cronCtx := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("任务调度器已停止")
		return nil
	case <-time.After(timeout):
		s.log.Warn("任务调度器停止超时")
		return fmt.Errorf("调度器在 %s 内未能停止", timeout)
	}
}

// AddJob 添加任务
func (s *JobScheduler) AddJob(config JobConfig) error {
	if err := ValidateJobConfig(config); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addJobInternal(config)
}

// RemoveJob 移除任务
func (s *JobScheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("任务不存在: %s", jobName)
	}
	s.cron.Remove(job.EntryID)
	delete(s.jobs, jobName)
	s.log.Infof("任务已移除: %s", jobName)
	return nil
}

// GetJob 获取任务状态的副本
func (s *JobScheduler) GetJob(jobName string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("任务不存在: %s", jobName)
	}
	jobCopy := *job
	return &jobCopy, nil
}

// GetAllJobs 获取所有任务
func (s *JobScheduler) GetAllJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}
	return jobs
}

// RunJob 手动触发任务，异步执行
func (s *JobScheduler) RunJob(jobName string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("任务不存在: %s", jobName)
	}
	if !job.Config.Enabled {
		return fmt.Errorf("任务已禁用: %s", jobName)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executeJob(job)
	}()
	return nil
}

// ValidateJobConfig 验证任务配置
func ValidateJobConfig(config JobConfig) error {
	if config.Name == "" {
		return fmt.Errorf("任务名称不能为空")
	}
	if config.Schedule == "" {
		return fmt.Errorf("任务调度表达式不能为空")
	}
	if _, err := cronParser.Parse(config.Schedule); err != nil {
		return fmt.Errorf("无效的调度表达式 '%s': %w", config.Schedule, err)
	}
	switch config.Mode {
	case ModeInitialize, ModeGradual, ModeGradualRetry, ModeFinancial, ModeCheck:
	case "":
		return fmt.Errorf("任务模式不能为空")
	default:
		return fmt.Errorf("未知的任务模式: %s", config.Mode)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("任务超时时间不能为负")
	}
	return nil
}

// addJobInternal 需要持有锁
func (s *JobScheduler) addJobInternal(config JobConfig) error {
	if _, exists := s.jobs[config.Name]; exists {
		return fmt.Errorf("任务已存在: %s", config.Name)
	}

	job := &Job{
		ID:     uuid.New().String(),
		Config: config,
		Status: JobStatusPending,
	}

	if !config.Enabled {
		job.Status = JobStatusDisabled
		s.jobs[config.Name] = job
		s.log.Infof("任务已添加（已禁用）: %s", config.Name)
		return nil
	}

	entryID, err := s.cron.AddFunc(config.Schedule, func() {
		s.wg.Add(1)
		defer s.wg.Done()
		s.executeJob(job)
	})
	if err != nil {
		return fmt.Errorf("添加任务到调度器失败: %w", err)
	}

	job.EntryID = entryID
	s.jobs[config.Name] = job
	s.log.Infof("任务已添加: %s (模式: %s, 调度: %s)", config.Name, config.Mode, config.Schedule)
	return nil
}

func (s *JobScheduler) executeJob(job *Job) {
	s.mu.Lock()
	if job.Status == JobStatusRunning {
		s.mu.Unlock()
		s.log.Warnf("任务正在运行，跳过本次执行: %s", job.Config.Name)
		return
	}
	job.Status = JobStatusRunning
	now := time.Now()
	job.LastRun = &now
	job.RunCount++
	s.mu.Unlock()

	s.log.Infof("开始执行任务: %s", job.Config.Name)

	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if job.Config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, job.Config.Timeout)
	}
	defer cancel()

	err := s.executor.Execute(ctx, job)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == ErrSkipped:
		job.Status = JobStatusPending
		job.SkipCount++
		s.log.Infof("任务本次跳过: %s", job.Config.Name)
	case err != nil:
		job.Status = JobStatusError
		job.LastError = err
		job.ErrorCount++
		s.log.WithError(err).Errorf("任务执行失败: %s", job.Config.Name)
	default:
		job.Status = JobStatusPending
		job.LastError = nil
		s.log.Infof("任务执行成功: %s", job.Config.Name)
	}
	s.updateNextRunTimes()
}

// updateNextRunTimes 需要持有锁
func (s *JobScheduler) updateNextRunTimes() {
	entries := s.cron.Entries()
	for _, job := range s.jobs {
		if !job.Config.Enabled {
			continue
		}
		for _, entry := range entries {
			if entry.ID == job.EntryID {
				nextRun := entry.Next
				job.NextRun = &nextRun
				break
			}
		}
	}
}

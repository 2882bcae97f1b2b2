package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stocksync/pkg/app"
	"stocksync/pkg/config"
	"stocksync/pkg/logger"
	"stocksync/pkg/scheduler"
	"stocksync/pkg/timing"
)

var (
	configPath = flag.String("config", "", "配置文件路径")
	jobsPath   = flag.String("jobs", "", "任务配置文件，覆盖 scheduler.jobs_file")
	runNow     = flag.String("run-now", "", "启动后立即执行一次指定任务")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithComponent("main").WithError(err).Fatal("加载配置失败")
	}
	if *jobsPath != "" {
		cfg.Scheduler.JobsFile = *jobsPath
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.WithComponent("main").WithError(err).Fatal("初始化失败")
	}
	defer a.Close()
	log := logger.WithComponent("main")

	sched := scheduler.NewJobScheduler(scheduler.NewSyncExecutor(a.Service, timing.NewCalendar(nil)))
	if err := sched.LoadConfig(cfg.Scheduler.JobsFile); err != nil {
		log.WithError(err).Fatal("加载任务配置失败")
	}
	if err := sched.Start(); err != nil {
		log.WithError(err).Fatal("启动调度器失败")
	}

	for _, job := range sched.GetAllJobs() {
		entry := log.WithField("job", job.Config.Name).WithField("mode", job.Config.Mode)
		if job.NextRun != nil {
			entry = entry.WithField("next_run", job.NextRun.Format(time.RFC3339))
		}
		entry.Info("任务已注册")
	}

	if *runNow != "" {
		if err := sched.RunJob(*runNow); err != nil {
			log.WithError(err).Error("立即执行任务失败")
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("收到退出信号，正在停止调度器...")
	if err := sched.Stop(30 * time.Second); err != nil {
		log.WithError(err).Warn("调度器未能按时停止")
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"stocksync/pkg/cache"
	"stocksync/pkg/config"
	"stocksync/pkg/logger"
)

var (
	configPath = flag.String("config", "", "配置文件路径")
	addr       = flag.String("addr", "", "监听地址，覆盖 server.addr")
	reload     = flag.Duration("reload", 5*time.Minute, "重新读取快照文件的间隔，0 表示不重新读取")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithComponent("api_server").WithError(err).Fatal("Failed to load configuration")
	}
	logger.Init(cfg.Logger)
	log := logger.WithComponent("api_server")

	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	gin.SetMode(cfg.Server.Mode)

	store := cache.NewStore(cfg.Cache.File, cache.WithDataSource(cfg.Cache.DataSource))
	if err := store.Load(); err != nil {
		var ce *cache.CacheError
		if !errors.As(err, &ce) {
			log.WithError(err).Fatal("Failed to load snapshot")
		}
		log.WithError(err).Warn("快照不可用，以空缓存启动")
	}

	var runs RunReader
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		runs = client
	}

	server := NewAPIServer(store, cfg.Cache.ValidityDays, runs, cfg.Redis.Stream, log)
	server.Start(cfg.Server.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *reload > 0 {
		go reloadLoop(ctx, store, *reload, log)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down API server...")
	server.Stop()
}

// reloadLoop 同步进程会不断改写快照文件，定期重新读取
func reloadLoop(ctx context.Context, store *cache.Store, interval time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Reload(); err != nil {
				log.WithError(err).Warn("重新读取快照失败，继续使用上次的数据")
			}
		}
	}
}

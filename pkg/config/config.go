package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"stocksync/pkg/logger"
	"stocksync/pkg/provider/decorators"
	"stocksync/pkg/syncer"
)

// EnvPrefix 环境变量前缀，如 STOCKSYNC_CACHE_FILE
const EnvPrefix = "STOCKSYNC"

// Config 主配置结构
type Config struct {
	Cache     CacheConfig     `mapstructure:"cache"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Logger    logger.Config   `mapstructure:"logger"`
	Redis     RedisConfig     `mapstructure:"redis"`
	InfluxDB  InfluxDBConfig  `mapstructure:"influxdb"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// CacheConfig 快照文件配置
type CacheConfig struct {
	File         string `mapstructure:"file"`          // 快照文件路径
	ValidityDays int    `mapstructure:"validity_days"` // 有效期（天）
	DataSource   string `mapstructure:"data_source"`   // 写入快照的数据源标识
}

// ProviderConfig 数据提供商配置
type ProviderConfig struct {
	Name       string                       `mapstructure:"name"`    // eastmoney 或 tencent
	Timeout    time.Duration                `mapstructure:"timeout"` // 请求超时时间
	Decorators []decorators.DecoratorConfig `mapstructure:"decorators"`
}

// ProfileConfig 单个批次模式的参数
type ProfileConfig struct {
	Delay           time.Duration   `mapstructure:"delay"`            // 逐条间隔
	MaxFailures     int             `mapstructure:"max_failures"`     // 连续失败阈值，0 不熔断
	Backoff         []time.Duration `mapstructure:"backoff"`          // 熔断暂停表
	CheckpointEvery int             `mapstructure:"checkpoint_every"` // 每成功多少条保存一次
}

// SyncConfig 同步配置
type SyncConfig struct {
	HistoryWindow time.Duration `mapstructure:"history_window"`
	Gradual       ProfileConfig `mapstructure:"gradual"`
	GradualRetry  ProfileConfig `mapstructure:"gradual_retry"`
	Financial     ProfileConfig `mapstructure:"financial"`
}

// RedisConfig 运行统计写入的 Redis Stream
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// InfluxDBConfig 运行统计写入的 InfluxDB
type InfluxDBConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

// SQLiteConfig 供下游读取的 SQLite 镜像
type SQLiteConfig struct {
	Enabled bool   `mapstructure:"enabled"` // 每次运行后导出
	Path    string `mapstructure:"path"`
}

// ServerConfig 只读 API 服务
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // gin 模式：debug / release / test
}

// SchedulerConfig 定时任务
type SchedulerConfig struct {
	JobsFile string `mapstructure:"jobs_file"`
}

// Default 返回默认配置
func Default() *Config {
	gradual := syncer.GradualProfile(false)
	retry := syncer.GradualProfile(true)
	financial := syncer.FinancialProfile()
	return &Config{
		Cache: CacheConfig{
			File:         "stock_info_cache.json",
			ValidityDays: syncer.DefaultValidityDays,
			DataSource:   "baostock",
		},
		Provider: ProviderConfig{
			Name:    "eastmoney",
			Timeout: 15 * time.Second,
			Decorators: []decorators.DecoratorConfig{
				{Type: decorators.RateLimitType, Enabled: true, Priority: 1,
					Config: map[string]interface{}{"min_interval": "200ms", "burst": 1}},
			},
		},
		Sync: SyncConfig{
			HistoryWindow: syncer.DefaultHistoryWindow,
			Gradual:       profileConfigOf(gradual),
			GradualRetry:  profileConfigOf(retry),
			Financial:     profileConfigOf(financial),
		},
		Logger: logger.Config{
			Level:    "info",
			Format:   "text",
			Output:   "console",
			Filename: "stocksync.log",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Stream: "stream:stocksync:runs",
			MaxLen: 1000,
		},
		InfluxDB: InfluxDBConfig{
			URL:         "http://localhost:8086",
			Org:         "stocksync",
			Bucket:      "stocksync",
			Measurement: "sync_run",
		},
		SQLite: SQLiteConfig{
			Path: "stock_info.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
			Mode: "release",
		},
		Scheduler: SchedulerConfig{
			JobsFile: "config/jobs.yaml",
		},
	}
}

func profileConfigOf(p syncer.Profile) ProfileConfig {
	return ProfileConfig{
		Delay:           p.Delay,
		MaxFailures:     p.FailureThreshold,
		Backoff:         p.Backoff,
		CheckpointEvery: p.CheckpointEvery,
	}
}

// Load 读取配置：默认值 < 配置文件 < STOCKSYNC_ 环境变量。path 为空时只查找 ./config 与当前目录
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stocksync")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("cache.file", d.Cache.File)
	v.SetDefault("cache.validity_days", d.Cache.ValidityDays)
	v.SetDefault("cache.data_source", d.Cache.DataSource)

	v.SetDefault("provider.name", d.Provider.Name)
	v.SetDefault("provider.timeout", d.Provider.Timeout)
	v.SetDefault("provider.decorators", d.Provider.Decorators)

	v.SetDefault("sync.history_window", d.Sync.HistoryWindow)
	for key, p := range map[string]ProfileConfig{
		"gradual":       d.Sync.Gradual,
		"gradual_retry": d.Sync.GradualRetry,
		"financial":     d.Sync.Financial,
	} {
		v.SetDefault("sync."+key+".delay", p.Delay)
		v.SetDefault("sync."+key+".max_failures", p.MaxFailures)
		v.SetDefault("sync."+key+".backoff", p.Backoff)
		v.SetDefault("sync."+key+".checkpoint_every", p.CheckpointEvery)
	}

	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.output", d.Logger.Output)
	v.SetDefault("logger.filename", d.Logger.Filename)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.stream", d.Redis.Stream)
	v.SetDefault("redis.max_len", d.Redis.MaxLen)

	v.SetDefault("influxdb.enabled", d.InfluxDB.Enabled)
	v.SetDefault("influxdb.url", d.InfluxDB.URL)
	v.SetDefault("influxdb.token", d.InfluxDB.Token)
	v.SetDefault("influxdb.org", d.InfluxDB.Org)
	v.SetDefault("influxdb.bucket", d.InfluxDB.Bucket)
	v.SetDefault("influxdb.measurement", d.InfluxDB.Measurement)

	v.SetDefault("sqlite.enabled", d.SQLite.Enabled)
	v.SetDefault("sqlite.path", d.SQLite.Path)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.mode", d.Server.Mode)

	v.SetDefault("scheduler.jobs_file", d.Scheduler.JobsFile)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Cache.File == "" {
		return errors.New("cache file cannot be empty")
	}
	if c.Cache.ValidityDays <= 0 {
		return errors.New("cache validity_days must be positive")
	}
	switch c.Provider.Name {
	case "eastmoney", "tencent":
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider.Name)
	}
	if c.Provider.Timeout <= 0 {
		return errors.New("provider timeout must be positive")
	}
	if c.Sync.HistoryWindow < 24*time.Hour {
		return errors.New("sync history_window must be at least one day")
	}
	for name, p := range map[string]ProfileConfig{
		"gradual":       c.Sync.Gradual,
		"gradual_retry": c.Sync.GradualRetry,
		"financial":     c.Sync.Financial,
	} {
		if p.Delay < 0 {
			return fmt.Errorf("sync.%s delay cannot be negative", name)
		}
		if p.MaxFailures < 0 {
			return fmt.Errorf("sync.%s max_failures cannot be negative", name)
		}
		if p.MaxFailures > 0 && len(p.Backoff) == 0 {
			return fmt.Errorf("sync.%s backoff cannot be empty when max_failures is set", name)
		}
		if p.CheckpointEvery <= 0 {
			return fmt.Errorf("sync.%s checkpoint_every must be positive", name)
		}
	}
	if c.Redis.Enabled && c.Redis.Stream == "" {
		return errors.New("redis stream cannot be empty")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		return errors.New("influxdb url and bucket are required")
	}
	if c.SQLite.Enabled && c.SQLite.Path == "" {
		return errors.New("sqlite path cannot be empty")
	}
	return nil
}

// Profiles 把三种模式的配置转换为批次参数
func (c *Config) Profiles() []syncer.Profile {
	build := func(base syncer.Profile, p ProfileConfig) syncer.Profile {
		base.Delay = p.Delay
		base.FailureThreshold = p.MaxFailures
		base.Backoff = p.Backoff
		base.CheckpointEvery = p.CheckpointEvery
		return base
	}
	return []syncer.Profile{
		build(syncer.GradualProfile(false), c.Sync.Gradual),
		build(syncer.GradualProfile(true), c.Sync.GradualRetry),
		build(syncer.FinancialProfile(), c.Sync.Financial),
	}
}

// SetDelay 覆盖所有模式的逐条间隔（命令行 --delay）
func (c *Config) SetDelay(delay time.Duration) *Config {
	c.Sync.Gradual.Delay = delay
	c.Sync.GradualRetry.Delay = delay
	c.Sync.Financial.Delay = delay
	return c
}

// SetMaxFailures 覆盖带熔断模式的连续失败阈值（命令行 --max-failures）
func (c *Config) SetMaxFailures(n int) *Config {
	c.Sync.GradualRetry.MaxFailures = n
	c.Sync.Financial.MaxFailures = n
	return c
}

// SetCacheFile 设置快照文件路径
func (c *Config) SetCacheFile(path string) *Config {
	c.Cache.File = path
	return c
}

// SetLogLevel 设置日志级别
func (c *Config) SetLogLevel(level string) *Config {
	c.Logger.Level = level
	return c
}

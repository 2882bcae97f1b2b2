package report

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"stocksync/pkg/logger"
	"stocksync/pkg/syncer"
)

// StreamWriter RedisSink 依赖的 Redis 操作
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisSink 把运行统计追加到 Redis Stream
type RedisSink struct {
	client   StreamWriter
	closer   func() error
	stream   string
	maxLen   int64
	producer string
	log      *logrus.Entry
}

// RedisOptions Redis 下游参数
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// DialRedis 连接 Redis 并确认可用
func DialRedis(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	sink := NewRedisSink(client, opts.Stream, opts.MaxLen)
	sink.closer = client.Close
	return sink, nil
}

// NewRedisSink 使用已有的客户端
func NewRedisSink(client StreamWriter, stream string, maxLen int64) *RedisSink {
	return &RedisSink{
		client:   client,
		stream:   stream,
		maxLen:   maxLen,
		producer: "stocksync",
		log:      logger.WithComponent("RedisSink"),
	}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, stats *syncer.Stats) error {
	env := NewEnvelope(s.producer, stats)
	data, err := env.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化运行统计失败: %w", err)
	}

	result := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: map[string]interface{}{
			"run_id": stats.RunID,
			"data":   data,
		},
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("发布到 Redis Stream 失败: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"stream":    s.stream,
		"messageID": result.Val(),
		"run_id":    stats.RunID,
	}).Debug("运行统计已发布")
	return nil
}

func (s *RedisSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

package report

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"stocksync/pkg/syncer"
)

// InfluxOptions InfluxDB 下游参数
type InfluxOptions struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// InfluxSink 每次运行写一个数据点
type InfluxSink struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
}

// NewInfluxSink 创建 InfluxDB 下游，不做连通性检查，写入失败由 Publish 汇报
func NewInfluxSink(opts InfluxOptions) *InfluxSink {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	measurement := opts.Measurement
	if measurement == "" {
		measurement = "sync_run"
	}
	return &InfluxSink{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(opts.Org, opts.Bucket),
		measurement: measurement,
	}
}

func (s *InfluxSink) Name() string { return "influxdb" }

func (s *InfluxSink) Write(ctx context.Context, stats *syncer.Stats) error {
	if err := s.writeAPI.WritePoint(ctx, s.point(stats)); err != nil {
		return fmt.Errorf("写入 InfluxDB 失败: %w", err)
	}
	return nil
}

func (s *InfluxSink) point(stats *syncer.Stats) *write.Point {
	return influxdb2.NewPointWithMeasurement(s.measurement).
		AddTag("mode", string(stats.Mode)).
		AddTag("profile", stats.Profile).
		AddTag("outcome", outcome(stats)).
		AddField("run_id", stats.RunID).
		AddField("total", stats.Total).
		AddField("processed", stats.Processed).
		AddField("successes", stats.Successes).
		AddField("failures", stats.Failures).
		AddField("checkpoints", stats.Checkpoints).
		AddField("backoff_pauses", stats.BackoffPauses).
		AddField("renewals", stats.Renewals).
		AddField("success_rate", stats.SuccessRate()).
		AddField("duration_seconds", stats.Duration.Seconds()).
		SetTime(stats.FinishedAt)
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stocksync/pkg/app"
	"stocksync/pkg/config"
	"stocksync/pkg/model"
	"stocksync/pkg/syncer"
)

var (
	configPath   = flag.String("config", "", "配置文件路径 (例如 ./config/stocksync.yaml)")
	cacheFile    = flag.String("cache-file", "", "快照文件路径，覆盖配置")
	status       = flag.Bool("status", false, "显示缓存状态")
	initList     = flag.Bool("init", false, "初始化A股代码列表")
	gradual      = flag.Bool("gradual", false, "渐进式更新股票详细信息")
	gradualRetry = flag.Bool("gradual-retry", false, "渐进式更新股票详细信息(连续失败时退避并重建会话)")
	financial    = flag.Bool("financial-update", false, "刷新全部股票的行情与估值")
	update       = flag.Bool("update", false, "忽略有效期强制更新")
	checkUpdate  = flag.Bool("check-update", false, "检查并在需要时更新缓存")
	queryStock   = flag.String("query-stock", "", "查询指定股票信息")
	filterMktcap = flag.Bool("filter-mktcap", false, "按市值筛选股票，后跟 MIN MAX 两个参数（元）")
	exportSQLite = flag.String("export-sqlite", "", "把快照导出到指定的 SQLite 文件")
	delay        = flag.Int("delay", -1, "每只股票间的延迟秒数，默认取配置")
	maxFailures  = flag.Int("max-failures", -1, "触发退避的最大连续失败次数，默认取配置")
	logLevel     = flag.String("log-level", "", "日志级别 (debug, info, warn, error)")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()
	os.Exit(execute(os.Stdout, os.Stderr))
}

// execute 返回进程退出码，延迟的清理在退出前全部执行
func execute(out, errOut io.Writer) int {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(errOut, "加载配置失败: %v\n", err)
		return 1
	}
	applyFlags(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(errOut, "初始化失败: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := run(ctx, a, out); err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 1
	}
	return 0
}

func applyFlags(cfg *config.Config) {
	if *cacheFile != "" {
		cfg.SetCacheFile(*cacheFile)
	}
	if *delay >= 0 {
		cfg.SetDelay(time.Duration(*delay) * time.Second)
	}
	if *maxFailures >= 0 {
		cfg.SetMaxFailures(*maxFailures)
	}
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
}

func run(ctx context.Context, a *app.App, out io.Writer) error {
	svc := a.Service
	switch {
	case *status:
		printStatus(out, a)
		return nil

	case *initList:
		fmt.Fprintln(out, "开始初始化A股代码列表...")
		res, err := svc.Initialize(ctx)
		if err != nil {
			return fmt.Errorf("初始化失败: %w", err)
		}
		fmt.Fprintf(out, "初始化完成: 列表 %d 只，A股 %d 只，新增 %d 只，跳过 %d 只\n",
			res.Listed, res.Matched, res.Added, res.Skipped)
		return nil

	case *gradual, *gradualRetry:
		fmt.Fprintln(out, "开始渐进式更新股票详细信息...")
		stats, err := svc.Gradual(ctx, *gradualRetry)
		return finish(out, "渐进式更新", stats, err)

	case *financial:
		fmt.Fprintln(out, "开始行情与估值更新...")
		stats, err := svc.Financial(ctx)
		return finish(out, "行情与估值更新", stats, err)

	case *update, *checkUpdate:
		stats, err := svc.CheckAndUpdate(ctx, *update)
		if err == nil && stats == nil {
			fmt.Fprintln(out, "缓存仍在有效期内，无需更新")
			return nil
		}
		return finish(out, "检查更新", stats, err)

	case *queryStock != "":
		rec, ok, err := svc.QueryStock(ctx, *queryStock)
		if err != nil {
			return fmt.Errorf("查询失败: %w", err)
		}
		if !ok {
			fmt.Fprintln(out, "未找到股票信息")
			return nil
		}
		printRecord(out, rec)
		return nil

	case *filterMktcap:
		minCap, maxCap, err := parseCapRange(flag.Args())
		if err != nil {
			return err
		}
		stocks := svc.FilterByMarketCap(minCap, maxCap)
		fmt.Fprintf(out, "符合条件的股票 %d 只\n", len(stocks))
		for _, rec := range stocks {
			fmt.Fprintf(out, "%s %-8s %-10s 市值 %.2f亿\n", rec.Code, rec.Name, rec.Industry, *rec.MarketCap/1e8)
		}
		return nil

	case *exportSQLite != "":
		n, err := a.ExportSQLite(ctx, *exportSQLite)
		if err != nil {
			return fmt.Errorf("导出失败: %w", err)
		}
		fmt.Fprintf(out, "已导出 %d 条记录到 %s\n", n, *exportSQLite)
		return nil
	}

	flag.Usage()
	return nil
}

func finish(out io.Writer, what string, stats *syncer.Stats, err error) error {
	if err != nil {
		return fmt.Errorf("%s失败: %w", what, err)
	}
	if stats.Aborted {
		return fmt.Errorf("%s中止: %s", what, stats.AbortReason)
	}
	fmt.Fprintf(out, "%s完成: 处理 %d/%d，成功 %d，失败 %d，退避 %d 次，耗时 %s\n",
		what, stats.Processed, stats.Total, stats.Successes, stats.Failures,
		stats.BackoffPauses, stats.Duration.Round(time.Second))
	return nil
}

func printStatus(out io.Writer, a *app.App) {
	st := a.Service.Status()
	fmt.Fprintln(out, "=== 股票信息缓存状态 ===")
	if st.LastUpdate == nil {
		fmt.Fprintln(out, "无缓存数据")
		return
	}
	valid := "否"
	if st.IsValid {
		valid = "是"
	}
	fmt.Fprintf(out, "最后更新: %s\n", st.LastUpdate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "数据源: %s\n", st.DataSource)
	fmt.Fprintf(out, "股票总数: %d\n", st.TotalCount)
	fmt.Fprintf(out, "缓存年龄: %d天\n", *st.AgeDays)
	fmt.Fprintf(out, "是否有效: %s\n", valid)
}

func printRecord(out io.Writer, rec model.StockRecord) {
	fmt.Fprintf(out, "股票代码: %s\n", rec.Code)
	fmt.Fprintf(out, "股票名称: %s\n", rec.Name)
	fmt.Fprintf(out, "所属市场: %s\n", rec.Market)
	fmt.Fprintf(out, "所属行业: %s\n", rec.Industry)
	fmt.Fprintf(out, "最新价格: %s\n", optional(rec.ClosePrice))
	fmt.Fprintf(out, "市值: %s\n", optional(rec.MarketCap))
	fmt.Fprintf(out, "市盈率: %s\n", optional(rec.PeTTM))
	fmt.Fprintf(out, "市净率: %s\n", optional(rec.PbMRQ))
}

func optional(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// parseCapRange 解析 MIN MAX，"-" 表示不设边界
func parseCapRange(args []string) (*float64, *float64, error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("-filter-mktcap 需要 MIN MAX 两个参数")
	}
	bounds := make([]*float64, 2)
	for i, s := range args {
		if s == "-" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("无效的市值 %q: %w", s, err)
		}
		bounds[i] = &v
	}
	if bounds[0] != nil && bounds[1] != nil && *bounds[0] > *bounds[1] {
		return nil, nil, fmt.Errorf("最小市值不能大于最大市值")
	}
	return bounds[0], bounds[1], nil
}

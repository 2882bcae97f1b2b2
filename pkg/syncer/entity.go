package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/logger"
	"stocksync/pkg/model"
	"stocksync/pkg/provider"
)

// DefaultHistoryWindow 日线查询回看窗口，覆盖节假日
const DefaultHistoryWindow = 7 * 24 * time.Hour

// Status 单条同步结果
type Status int

const (
	StatusUpdated Status = iota
	StatusNoResult
)

func (s Status) String() string {
	if s == StatusUpdated {
		return "updated"
	}
	return "no_result"
}

// Result 单条同步结果。NoResult 时 Record 为原记录，Cause 为数据源错误
type Result struct {
	Code   string
	Status Status
	Record model.StockRecord
	Cause  error
}

// EntitySync 拉取并合并单只股票
type EntitySync struct {
	provider provider.Provider
	window   time.Duration
	now      func() time.Time
	log      *logrus.Entry

	// forceBasic 为 true 时，未完成详细更新的记录总是重新拉取基本信息
	forceBasic bool
}

// NewEntitySync 创建单条同步器
func NewEntitySync(p provider.Provider, window time.Duration, now func() time.Time) *EntitySync {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if now == nil {
		now = time.Now
	}
	return &EntitySync{
		provider: p,
		window:   window,
		now:      now,
		log:      logger.WithComponent("EntitySync"),
	}
}

// Sync 拉取一只股票并与 existing 合并。
// 数据源错误与空结果以 NoResult 返回，只有本地记录异常才返回 error
func (e *EntitySync) Sync(ctx context.Context, code string, existing model.StockRecord) (Result, error) {
	if !model.ValidCode(code) {
		return Result{}, stockerr.Errorf(stockerr.CodeInvalidRecord, "invalid stock code %q", code)
	}
	if existing.Code == "" {
		existing.Code = code
	}
	if existing.Code != code {
		return Result{}, stockerr.Errorf(stockerr.CodeInvalidRecord, "record code %q does not match key %q", existing.Code, code)
	}

	log := e.log.WithField("code", code)
	marketCode := model.MarketCode(code)
	now := e.now()
	patch := model.Patch{UpdatedAt: now}

	noResult := func(cause error) (Result, error) {
		log.WithError(cause).Warn("未获取到数据，保持待更新")
		return Result{Code: code, Status: StatusNoResult, Record: existing, Cause: cause}, nil
	}

	if existing.NeedsBasicInfo() || (e.forceBasic && !existing.DetailedInfoUpdated) {
		info, err := e.provider.QueryBasicInfo(ctx, marketCode)
		if err != nil {
			return noResult(err)
		}
		if info == nil {
			return noResult(stockerr.NewEmptyResultError("query_stock_basic", marketCode))
		}
		if info.Name != "" {
			patch.Name = model.String(info.Name)
		}
		if info.IPODate != "" {
			patch.ListDate = model.String(info.IPODate)
		}
		status := info.ListStatus()
		patch.ListStatus = &status
		patch.BasicFetched = true
	}

	if existing.NeedsIndustry() {
		industry, err := e.provider.QueryIndustry(ctx, marketCode)
		switch {
		case err != nil:
			log.WithError(err).Warn("获取行业信息失败，保留原值")
		case industry == "":
			patch.Industry = model.String(model.IndustryUnknown)
		default:
			patch.Industry = model.String(industry)
		}
	}

	rows, err := e.provider.QueryHistory(ctx, provider.HistoryQuery{
		Code:      marketCode,
		Fields:    provider.SnapshotFields,
		Start:     now.Add(-e.window),
		End:       now,
		Frequency: provider.FrequencyDaily,
		Adjust:    provider.AdjustNone,
	})
	if err != nil {
		return noResult(err)
	}
	if len(rows) == 0 {
		return noResult(stockerr.NewEmptyResultError("query_history_k_data", marketCode))
	}
	patch.Snapshot = snapshotOf(code, rows[len(rows)-1])

	merged := model.Merge(existing, patch)
	log.WithFields(logrus.Fields{
		"name":  merged.Name,
		"close": fmtFloat(merged.ClosePrice),
	}).Debug("同步成功")
	return Result{Code: code, Status: StatusUpdated, Record: merged}, nil
}

// snapshotOf 以最新一行日线构造行情快照，市值按新收盘价重新估算
func snapshotOf(code string, row provider.HistoryRow) *model.MarketSnapshot {
	return &model.MarketSnapshot{
		TradeDate:  row.Date,
		OpenPrice:  row.Open,
		HighPrice:  row.High,
		LowPrice:   row.Low,
		ClosePrice: row.Close,
		Volume:     row.Volume,
		Amount:     row.Amount,
		PctChg:     row.PctChg,
		PeTTM:      row.PeTTM,
		PbMRQ:      row.PbMRQ,
		PsTTM:      row.PsTTM,
		PcfTTM:     row.PcfNcfTTM,
		MarketCap:  model.EstimateMarketCap(code, row.Close),
	}
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.2f", *v)
}

package provider

import (
	"strconv"
	"strings"
	"time"

	"stocksync/pkg/model"
)

// BasicInfo 证券基本信息
type BasicInfo struct {
	Code     string // 6位代码
	Name     string
	IPODate  string // 上市日期 YYYY-MM-DD
	OutDate  string // 退市日期，为空表示正常上市
	Type     string // 证券类型，1 为股票
	Industry string // 部分数据源随基本信息一并返回
}

// ListStatus 根据退市日期推导上市状态
func (b BasicInfo) ListStatus() model.ListingStatus {
	if b.OutDate == "" {
		return model.ListingActive
	}
	return model.ListingDelisted
}

// 日线查询字段名
const (
	FieldDate      = "date"
	FieldCode      = "code"
	FieldOpen      = "open"
	FieldHigh      = "high"
	FieldLow       = "low"
	FieldClose     = "close"
	FieldPreClose  = "preclose"
	FieldVolume    = "volume"
	FieldAmount    = "amount"
	FieldPctChg    = "pctChg"
	FieldPeTTM     = "peTTM"
	FieldPbMRQ     = "pbMRQ"
	FieldPsTTM     = "psTTM"
	FieldPcfNcfTTM = "pcfNcfTTM"
)

// SnapshotFields 行情、成交与估值来自同一个接口，一次请求全部字段
var SnapshotFields = []string{
	FieldDate, FieldCode, FieldOpen, FieldHigh, FieldLow, FieldClose, FieldPreClose,
	FieldVolume, FieldAmount, FieldPctChg, FieldPeTTM, FieldPbMRQ, FieldPsTTM, FieldPcfNcfTTM,
}

const (
	FrequencyDaily = "d"
	AdjustNone     = "3" // 不复权
)

// HistoryQuery 日线查询参数
type HistoryQuery struct {
	Code      string // 市场代码，如 "sz.000001"
	Fields    []string
	Start     time.Time
	End       time.Time
	Frequency string
	Adjust    string
}

// DateRange 以 YYYY-MM-DD 返回起止日期
func (q HistoryQuery) DateRange() (string, string) {
	return q.Start.Format("2006-01-02"), q.End.Format("2006-01-02")
}

// HistoryRow 一行日线数据，数据源为空的单元格为 nil
type HistoryRow struct {
	Date      string
	Code      string
	Open      *float64
	High      *float64
	Low       *float64
	Close     *float64
	PreClose  *float64
	Volume    *float64
	Amount    *float64
	PctChg    *float64
	PeTTM     *float64
	PbMRQ     *float64
	PsTTM     *float64
	PcfNcfTTM *float64
}

// ParseCell 解析数据源返回的数值单元格，空串或 "-" 视为缺失
func ParseCell(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

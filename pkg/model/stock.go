// Package model 定义股票缓存记录、快照以及记录合并规则。
package model

import (
	"strings"
)

// Market 交易所，由代码前缀唯一推导
type Market string

const (
	MarketShanghai Market = "上海"
	MarketShenzhen Market = "深圳"
	MarketBeijing  Market = "北交所"
	MarketUnknown  Market = "未知"
)

// ListingStatus 上市状态
type ListingStatus string

const (
	ListingActive   ListingStatus = "1"
	ListingDelisted ListingStatus = "0"
)

// 行业字段的哨兵值
const (
	IndustryPending = "待更新"
	IndustryUnknown = "未知行业"
)

// MarketSnapshot 最近一个交易日的行情与估值，每次财务更新整体刷新
type MarketSnapshot struct {
	TradeDate  string   `json:"trade_date,omitempty"`
	OpenPrice  *float64 `json:"open_price"`
	HighPrice  *float64 `json:"high_price"`
	LowPrice   *float64 `json:"low_price"`
	ClosePrice *float64 `json:"close_price"`
	Volume     *float64 `json:"volume"`
	Amount     *float64 `json:"amount"`
	PctChg     *float64 `json:"pct_chg"`
	PeTTM      *float64 `json:"pe_ttm"`
	PbMRQ      *float64 `json:"pb_mrq"`
	PsTTM      *float64 `json:"ps_ttm"`
	PcfTTM     *float64 `json:"pcf_ttm"`
	MarketCap  *float64 `json:"market_cap"` // 估算市值，收盘价缺失或为0时为 null
}

// StockRecord 单只股票的缓存记录
type StockRecord struct {
	Code       string        `json:"code"`
	Name       string        `json:"name"`
	Industry   string        `json:"industry"`
	Market     Market        `json:"market"`
	ListDate   string        `json:"list_date"`
	ListStatus ListingStatus `json:"list_status"`

	LastUpdated         Timestamp `json:"last_updated"`
	DetailedInfoUpdated bool      `json:"detailed_info_updated"`
	LastDetailedUpdate  Timestamp `json:"last_detailed_update"`

	MarketSnapshot
}

// NewSkeleton 创建初始化阶段的骨架记录：只有上市信息，行业待更新
func NewSkeleton(code, name, listDate string, status ListingStatus, now Timestamp) StockRecord {
	code = NormalizeCode(code)
	if name == "" {
		name = "股票" + code
	}
	return StockRecord{
		Code:        code,
		Name:        name,
		Industry:    IndustryPending,
		Market:      MarketOf(code),
		ListDate:    listDate,
		ListStatus:  status,
		LastUpdated: now,
	}
}

// Normalize 以缓存键为准修正代码，并重新推导交易所
func (r *StockRecord) Normalize(key string) {
	if key != "" {
		r.Code = NormalizeCode(key)
	} else {
		r.Code = NormalizeCode(r.Code)
	}
	r.Market = MarketOf(r.Code)
}

// NeedsBasicInfo 名称缺失或行业处于待更新状态时需要重新拉取基本信息
func (r StockRecord) NeedsBasicInfo() bool {
	return r.Name == "" || r.Industry == IndustryPending
}

// NeedsIndustry 行业为空、待更新或未知时需要拉取行业
func (r StockRecord) NeedsIndustry() bool {
	switch r.Industry {
	case "", IndustryPending, IndustryUnknown:
		return true
	}
	return false
}

// HasPrice 是否已有收盘价
func (r StockRecord) HasPrice() bool {
	return r.ClosePrice != nil
}

// NormalizeCode 补齐为6位代码
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, '.'); i >= 0 {
		code = code[i+1:]
	}
	for len(code) < 6 {
		code = "0" + code
	}
	return code
}

// ValidCode 是否为6位数字代码
func ValidCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// MarketOf 根据代码前缀判断交易所
func MarketOf(code string) Market {
	code = NormalizeCode(code)
	switch {
	case strings.HasPrefix(code, "60"), strings.HasPrefix(code, "68"), strings.HasPrefix(code, "9"):
		return MarketShanghai
	case strings.HasPrefix(code, "00"), strings.HasPrefix(code, "30"):
		return MarketShenzhen
	case strings.HasPrefix(code, "8"):
		return MarketBeijing
	default:
		return MarketUnknown
	}
}

// Prefix 返回数据源使用的市场前缀
func (m Market) Prefix() string {
	switch m {
	case MarketShanghai:
		return "sh"
	case MarketBeijing:
		return "bj"
	default:
		return "sz"
	}
}

// MarketCode 转换为 "sh.600000" 形式的市场代码
func MarketCode(code string) string {
	code = NormalizeCode(code)
	return MarketOf(code).Prefix() + "." + code
}

// Float 返回指向 v 的指针
func Float(v float64) *float64 {
	return &v
}

// String 返回指向 s 的指针
func String(s string) *string {
	return &s
}

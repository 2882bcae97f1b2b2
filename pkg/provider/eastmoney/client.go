// Package eastmoney 东方财富行情数据源，提供基本信息、行业、日线与估值、全市场列表。
package eastmoney

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/logger"
	"stocksync/pkg/model"
	"stocksync/pkg/provider"
)

// Endpoints 东方财富接口地址
type Endpoints struct {
	Quote string
	KLine string
	List  string
}

// DefaultEndpoints 生产环境接口
var DefaultEndpoints = Endpoints{
	Quote: "https://push2.eastmoney.com/api/qt/stock/get",
	KLine: "https://push2his.eastmoney.com/api/qt/stock/kline/get",
	List:  "https://82.push2.eastmoney.com/api/qt/clist/get",
}

// 个股行情字段：f57 代码 f58 名称 f127 行业 f189 上市日期 f164 市盈率TTM f167 市净率 f130 市销率TTM f131 市现率TTM
const (
	basicFields     = "f57,f58,f127,f189"
	valuationFields = "f57,f164,f167,f130,f131"
)

// 日线字段：f51 日期 f52 开 f53 收 f54 高 f55 低 f56 成交量(手) f57 成交额 f58 振幅 f59 涨跌幅 f60 涨跌额 f61 换手率
const klineFields = "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61"

// 全市场列表：沪深主板、创业板、科创板，f12 代码 f14 名称 f26 上市日期
const (
	listFilter   = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23"
	listFields   = "f12,f14,f26"
	listPageSize = 500
	loginProbe   = "1.000001"
)

// 请求头（模拟浏览器）
const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://quote.eastmoney.com/"
)

// Provider 东方财富数据源
type Provider struct {
	httpClient *http.Client
	endpoints  Endpoints
	log        *logrus.Entry
}

// Option 构造选项
type Option func(*Provider)

// WithEndpoints 替换接口地址
func WithEndpoints(e Endpoints) Option {
	return func(p *Provider) { p.endpoints = e }
}

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// NewProvider 创建东方财富数据源
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoints:  DefaultEndpoints,
		log:        logger.WithComponent("EastmoneyProvider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return "eastmoney"
}

// SetTimeout 设置请求超时时间
func (p *Provider) SetTimeout(timeout time.Duration) {
	p.httpClient.Timeout = timeout
}

// SetMaxRetries 单次请求不重试
func (p *Provider) SetMaxRetries(retries int) {}

// Login 探测行情接口是否可用。接口本身无账号体系
func (p *Provider) Login(ctx context.Context) error {
	q := url.Values{"secid": {loginProbe}, "fields": {"f57"}}
	body, err := p.get(ctx, p.endpoints.Quote, q)
	if err != nil {
		return stockerr.NewAuthError(p.Name(), "probe quote endpoint failed", err)
	}
	if rc := gjson.GetBytes(body, "rc"); rc.Exists() && rc.Int() != 0 {
		return stockerr.NewAuthError(p.Name(), fmt.Sprintf("probe returned rc=%d", rc.Int()), nil)
	}
	return nil
}

// Logout 释放空闲连接
func (p *Provider) Logout(ctx context.Context) error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// QueryBasicInfo 查询名称与上市日期，未知代码返回 nil, nil
func (p *Provider) QueryBasicInfo(ctx context.Context, marketCode string) (*provider.BasicInfo, error) {
	data, err := p.quote(ctx, "query_stock_basic", marketCode, basicFields)
	if err != nil || !data.Exists() {
		return nil, err
	}
	return &provider.BasicInfo{
		Code:     data.Get("f57").String(),
		Name:     strings.TrimSpace(data.Get("f58").String()),
		IPODate:  formatDate(data.Get("f189").String()),
		Type:     "1",
		Industry: cleanText(data.Get("f127")),
	}, nil
}

// QueryIndustry 查询行业板块名称
func (p *Provider) QueryIndustry(ctx context.Context, marketCode string) (string, error) {
	data, err := p.quote(ctx, "query_stock_industry", marketCode, "f127")
	if err != nil || !data.Exists() {
		return "", err
	}
	return cleanText(data.Get("f127")), nil
}

// QueryHistory 查询不复权日线，最后一行附带当前估值
func (p *Provider) QueryHistory(ctx context.Context, hq provider.HistoryQuery) ([]provider.HistoryRow, error) {
	const query = "query_history_k_data"
	start, end := hq.DateRange()
	q := url.Values{
		"secid":   {secID(hq.Code)},
		"fields1": {"f1,f2,f3"},
		"fields2": {klineFields},
		"klt":     {"101"},
		"fqt":     {adjustFlag(hq.Adjust)},
		"beg":     {strings.ReplaceAll(start, "-", "")},
		"end":     {strings.ReplaceAll(end, "-", "")},
	}
	body, err := p.get(ctx, p.endpoints.KLine, q)
	if err != nil {
		return nil, stockerr.NewQueryError(query, "http", err.Error()).WithContext("code", hq.Code)
	}
	rows := parseKlines(body, hq.Code)
	if len(rows) == 0 {
		return nil, stockerr.NewEmptyResultError(query, hq.Code)
	}

	valuation, err := p.quote(ctx, query, hq.Code, valuationFields)
	if err != nil {
		return nil, err
	}
	last := &rows[len(rows)-1]
	last.PeTTM = number(valuation.Get("f164"))
	last.PbMRQ = number(valuation.Get("f167"))
	last.PsTTM = number(valuation.Get("f130"))
	last.PcfNcfTTM = number(valuation.Get("f131"))
	return rows, nil
}

// QueryStockList 分页拉取沪深A股列表
func (p *Provider) QueryStockList(ctx context.Context) ([]provider.BasicInfo, error) {
	var all []provider.BasicInfo
	for page := 1; ; page++ {
		q := url.Values{
			"pn":     {strconv.Itoa(page)},
			"pz":     {strconv.Itoa(listPageSize)},
			"fs":     {listFilter},
			"fields": {listFields},
		}
		body, err := p.get(ctx, p.endpoints.List, q)
		if err != nil {
			return nil, stockerr.NewQueryError("query_stock_list", "http", err.Error())
		}
		total := int(gjson.GetBytes(body, "data.total").Int())
		count := 0
		gjson.GetBytes(body, "data.diff").ForEach(func(_, item gjson.Result) bool {
			code := item.Get("f12").String()
			if code == "" {
				return true
			}
			count++
			all = append(all, provider.BasicInfo{
				Code:    code,
				Name:    strings.TrimSpace(item.Get("f14").String()),
				IPODate: formatDate(item.Get("f26").String()),
				Type:    "1",
			})
			return true
		})
		p.log.Debugf("列表第 %d 页: %d 条，累计 %d/%d", page, count, len(all), total)
		if count == 0 || count < listPageSize || len(all) >= total {
			break
		}
	}
	return all, nil
}

// quote 查询个股行情的 data 节点，data 为 null 时返回不存在的结果
func (p *Provider) quote(ctx context.Context, query, marketCode, fields string) (gjson.Result, error) {
	q := url.Values{"secid": {secID(marketCode)}, "fltt": {"2"}, "fields": {fields}}
	body, err := p.get(ctx, p.endpoints.Quote, q)
	if err != nil {
		return gjson.Result{}, stockerr.NewQueryError(query, "http", err.Error()).WithContext("code", marketCode)
	}
	if rc := gjson.GetBytes(body, "rc"); rc.Exists() && rc.Int() != 0 {
		return gjson.Result{}, stockerr.NewQueryError(query, rc.String(), "eastmoney returned non-zero rc").
			WithContext("code", marketCode)
	}
	data := gjson.GetBytes(body, "data")
	if data.Type == gjson.Null {
		return gjson.Result{}, nil
	}
	return data, nil
}

func (p *Provider) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status error: %d", resp.StatusCode)
	}
	return body, nil
}

// parseKlines 解析 data.klines，每行为逗号分隔的 f51..f61
func parseKlines(body []byte, marketCode string) []provider.HistoryRow {
	klines := gjson.GetBytes(body, "data.klines")
	if !klines.IsArray() {
		return nil
	}
	var rows []provider.HistoryRow
	for _, v := range klines.Array() {
		parts := strings.Split(strings.TrimSpace(v.String()), ",")
		if len(parts) < 11 {
			continue
		}
		row := provider.HistoryRow{
			Date:   parts[0],
			Code:   marketCode,
			Open:   provider.ParseCell(parts[1]),
			Close:  provider.ParseCell(parts[2]),
			High:   provider.ParseCell(parts[3]),
			Low:    provider.ParseCell(parts[4]),
			Volume: provider.ParseCell(parts[5]),
			Amount: provider.ParseCell(parts[6]),
			PctChg: provider.ParseCell(parts[8]),
		}
		// 成交量从手转换为股
		if row.Volume != nil {
			v := *row.Volume * 100
			row.Volume = &v
		}
		if change := provider.ParseCell(parts[9]); change != nil && row.Close != nil {
			pre := *row.Close - *change
			row.PreClose = &pre
		}
		rows = append(rows, row)
	}
	return rows
}

// secID 转为东方财富 secid：上海 1.600519，深圳与北交所 0.000001
func secID(marketCode string) string {
	code := model.NormalizeCode(marketCode)
	if model.MarketOf(code) == model.MarketShanghai {
		return "1." + code
	}
	return "0." + code
}

// adjustFlag 复权方式映射：3 不复权 -> 0，2 前复权 -> 1，1 后复权 -> 2
func adjustFlag(adjust string) string {
	switch adjust {
	case "1":
		return "2"
	case "2":
		return "1"
	default:
		return "0"
	}
}

// number 数值字段，"-" 等占位符视为缺失
func number(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Float()
	return &v
}

// cleanText 文本字段，"-" 视为缺失
func cleanText(r gjson.Result) string {
	s := strings.TrimSpace(r.String())
	if s == "-" {
		return ""
	}
	return s
}

// formatDate 20010827 -> 2001-08-27
func formatDate(s string) string {
	if len(s) != 8 {
		return ""
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:]
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.Configurable = (*Provider)(nil)
)

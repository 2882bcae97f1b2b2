package tencent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/logger"
	"stocksync/pkg/model"
	"stocksync/pkg/provider"
)

// DefaultBaseURL 腾讯行情接口
const DefaultBaseURL = "http://qt.gtimg.cn/q="

// Provider 腾讯数据提供商。
// 行情接口无需登录，只能提供名称、最新一日行情和 PE/PB，不提供行业与上市日期
type Provider struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	log        *logrus.Entry
}

// Option 构造选项
type Option func(*Provider)

// WithBaseURL 替换行情接口地址
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// NewProvider 创建腾讯数据提供商
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
				MaxConnsPerHost:     10,
			},
			Timeout: 15 * time.Second,
		},
		baseURL:   DefaultBaseURL,
		userAgent: "StockSync/1.0",
		log:       logger.WithComponent("TencentProvider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return "tencent"
}

// Login 行情接口无会话
func (p *Provider) Login(ctx context.Context) error {
	return nil
}

// Logout 释放空闲连接
func (p *Provider) Logout(ctx context.Context) error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// SetTimeout 设置请求超时时间
func (p *Provider) SetTimeout(timeout time.Duration) {
	p.httpClient.Timeout = timeout
}

// SetMaxRetries 单次请求不重试，重试由批次熔断逻辑负责
func (p *Provider) SetMaxRetries(retries int) {}

// QueryBasicInfo 以行情中的名称作为基本信息
func (p *Provider) QueryBasicInfo(ctx context.Context, marketCode string) (*provider.BasicInfo, error) {
	q, err := p.quote(ctx, "query_stock_basic", marketCode)
	if err != nil || q == nil {
		return nil, err
	}
	return &provider.BasicInfo{Code: q.Code, Name: q.Name, Type: "1"}, nil
}

// QueryIndustry 腾讯行情不含行业分类
func (p *Provider) QueryIndustry(ctx context.Context, marketCode string) (string, error) {
	return "", nil
}

// QueryHistory 返回仅含最新交易日的一行
func (p *Provider) QueryHistory(ctx context.Context, hq provider.HistoryQuery) ([]provider.HistoryRow, error) {
	q, err := p.quote(ctx, "query_history_k_data", hq.Code)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, stockerr.NewEmptyResultError("query_history_k_data", hq.Code)
	}
	return []provider.HistoryRow{q.historyRow(hq.Code)}, nil
}

// QueryStockList 行情接口无法枚举全市场
func (p *Provider) QueryStockList(ctx context.Context) ([]provider.BasicInfo, error) {
	return nil, stockerr.NewQueryError("query_stock_list", "unsupported", "tencent provider cannot list securities")
}

// quote 拉取单只股票行情，没有匹配时返回 nil, nil
func (p *Provider) quote(ctx context.Context, query, marketCode string) (*Quote, error) {
	body, err := p.get(ctx, p.buildURL(marketCode))
	if err != nil {
		return nil, stockerr.NewQueryError(query, "http", err.Error()).WithContext("code", marketCode)
	}
	quotes := parseQuotes(body)
	if len(quotes) == 0 {
		return nil, nil
	}
	return &quotes[0], nil
}

func (p *Provider) get(ctx context.Context, url string) (string, error) {
	requestStart := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response failed: %w", err)
	}
	p.log.Debugf("HTTP request completed in %v, status: %d, body length: %d",
		time.Since(requestStart), resp.StatusCode, len(body))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP status error: %d", resp.StatusCode)
	}
	return string(body), nil
}

// buildURL 构建腾讯行情URL，sh.600000 -> sh600000
func (p *Provider) buildURL(marketCode string) string {
	if prefix, code, ok := strings.Cut(marketCode, "."); ok {
		return p.baseURL + prefix + code
	}
	code := model.NormalizeCode(marketCode)
	return p.baseURL + model.MarketOf(code).Prefix() + code
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.Configurable = (*Provider)(nil)
)


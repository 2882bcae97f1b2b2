package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/model"
	"stocksync/pkg/provider"
)

// 查询操作名，与 CallRecord.Op 对应
const (
	OpLogin     = "login"
	OpLogout    = "logout"
	OpBasicInfo = "query_stock_basic"
	OpIndustry  = "query_stock_industry"
	OpHistory   = "query_history_k_data"
	OpStockList = "query_stock_list"
)

// CallRecord 调用记录
type CallRecord struct {
	Op        string
	Code      string
	Err       error
	Timestamp time.Time
}

// CallRecorder 调用记录器
type CallRecorder struct {
	mu    sync.RWMutex
	calls []CallRecord
}

func (r *CallRecorder) record(c CallRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// Calls 返回调用记录副本
func (r *CallRecorder) Calls() []CallRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CallRecord, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count 统计指定操作的调用次数，code 为空时不区分代码
func (r *CallRecorder) Count(op, code string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op && (code == "" || c.Code == code) {
			n++
		}
	}
	return n
}

// Codes 返回指定操作依次查询过的代码
func (r *CallRecorder) Codes(op string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var codes []string
	for _, c := range r.calls {
		if c.Op == op {
			codes = append(codes, c.Code)
		}
	}
	return codes
}

// Hook 在每次调用前执行，返回非 nil 错误时该调用直接失败。可在其中 panic
type Hook func(op, code string) error

// MockProvider 可编排的数据源，代码一律以 "sh.600000" 形式为键
type MockProvider struct {
	mu        sync.Mutex
	name      string
	basic     map[string]*provider.BasicInfo
	industry  map[string]string
	history   map[string][]provider.HistoryRow
	failures  map[string]map[string]error
	stockList []provider.BasicInfo
	loginErrs []error
	logoutErr error
	hook      Hook
	loggedIn  bool

	*CallRecorder
}

// NewMockProvider 创建空的 Mock 数据源。未编排的代码基本信息返回空，日线返回空结果
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:         "mock",
		basic:        make(map[string]*provider.BasicInfo),
		industry:     make(map[string]string),
		history:      make(map[string][]provider.HistoryRow),
		failures:     make(map[string]map[string]error),
		CallRecorder: &CallRecorder{},
	}
}

// Name 返回提供商名称
func (m *MockProvider) Name() string {
	return m.name
}

// SetBasic 编排基本信息
func (m *MockProvider) SetBasic(code, name, ipoDate string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = model.MarketCode(code)
	m.basic[code] = &provider.BasicInfo{Code: model.NormalizeCode(code), Name: name, IPODate: ipoDate, Type: "1"}
	return m
}

// SetIndustry 编排行业
func (m *MockProvider) SetIndustry(code, industry string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.industry[model.MarketCode(code)] = industry
	return m
}

// SetClose 编排一行只有收盘价与 PE 的日线
func (m *MockProvider) SetClose(code, date string, closePrice, pe float64) *MockProvider {
	return m.SetHistory(code, provider.HistoryRow{
		Date:  date,
		Code:  model.MarketCode(code),
		Close: model.Float(closePrice),
		PeTTM: model.Float(pe),
	})
}

// SetHistory 编排日线，最后一行为最新
func (m *MockProvider) SetHistory(code string, rows ...provider.HistoryRow) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[model.MarketCode(code)] = rows
	return m
}

// Fail 让指定操作对指定代码返回错误
func (m *MockProvider) Fail(op, code string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = model.MarketCode(code)
	if m.failures[op] == nil {
		m.failures[op] = make(map[string]error)
	}
	m.failures[op][code] = err
	return m
}

// FailQuery 以数据源错误码让指定操作失败
func (m *MockProvider) FailQuery(op, code string) *MockProvider {
	return m.Fail(op, code, stockerr.NewQueryError(op, "10002007", "mock query failure"))
}

// SetStockList 编排证券列表
func (m *MockProvider) SetStockList(list ...provider.BasicInfo) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stockList = list
	return m
}

// FailLogins 依次消费的登录结果，nil 表示成功，用完后登录一律成功
func (m *MockProvider) FailLogins(errs ...error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginErrs = errs
	return m
}

// FailLogout 让登出返回错误
func (m *MockProvider) FailLogout(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutErr = err
	return m
}

// SetHook 设置调用前钩子
func (m *MockProvider) SetHook(h Hook) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = h
	return m
}

// LoggedIn 当前是否处于登录状态
func (m *MockProvider) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}

// Login 登录
func (m *MockProvider) Login(ctx context.Context) error {
	err := m.before(OpLogin, "")
	m.mu.Lock()
	if err == nil && len(m.loginErrs) > 0 {
		err = m.loginErrs[0]
		m.loginErrs = m.loginErrs[1:]
	}
	if err == nil {
		m.loggedIn = true
	}
	m.mu.Unlock()
	m.after(OpLogin, "", err)
	return err
}

// Logout 登出
func (m *MockProvider) Logout(ctx context.Context) error {
	err := m.before(OpLogout, "")
	m.mu.Lock()
	m.loggedIn = false
	if err == nil {
		err = m.logoutErr
	}
	m.mu.Unlock()
	m.after(OpLogout, "", err)
	return err
}

// QueryBasicInfo 查询基本信息
func (m *MockProvider) QueryBasicInfo(ctx context.Context, marketCode string) (*provider.BasicInfo, error) {
	if err := m.query(OpBasicInfo, marketCode); err != nil {
		return nil, err
	}
	m.mu.Lock()
	info := m.basic[marketCode]
	m.mu.Unlock()
	m.after(OpBasicInfo, marketCode, nil)
	if info == nil {
		return nil, nil
	}
	out := *info
	return &out, nil
}

// QueryIndustry 查询行业
func (m *MockProvider) QueryIndustry(ctx context.Context, marketCode string) (string, error) {
	if err := m.query(OpIndustry, marketCode); err != nil {
		return "", err
	}
	m.mu.Lock()
	industry := m.industry[marketCode]
	m.mu.Unlock()
	m.after(OpIndustry, marketCode, nil)
	return industry, nil
}

// QueryHistory 查询日线
func (m *MockProvider) QueryHistory(ctx context.Context, q provider.HistoryQuery) ([]provider.HistoryRow, error) {
	if err := m.query(OpHistory, q.Code); err != nil {
		return nil, err
	}
	m.mu.Lock()
	rows := m.history[q.Code]
	m.mu.Unlock()
	if len(rows) == 0 {
		err := stockerr.NewEmptyResultError(OpHistory, q.Code)
		m.after(OpHistory, q.Code, err)
		return nil, err
	}
	m.after(OpHistory, q.Code, nil)
	return append([]provider.HistoryRow(nil), rows...), nil
}

// QueryStockList 查询证券列表
func (m *MockProvider) QueryStockList(ctx context.Context) ([]provider.BasicInfo, error) {
	if err := m.query(OpStockList, ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	list := append([]provider.BasicInfo(nil), m.stockList...)
	m.mu.Unlock()
	m.after(OpStockList, "", nil)
	return list, nil
}

// query 执行钩子、会话检查与编排的失败
func (m *MockProvider) query(op, code string) error {
	err := m.before(op, code)
	m.mu.Lock()
	if err == nil && !m.loggedIn {
		err = stockerr.NewQueryError(op, "10001001", fmt.Sprintf("%s called without login", op))
	}
	if err == nil {
		err = m.failures[op][code]
	}
	m.mu.Unlock()
	if err != nil {
		m.after(op, code, err)
	}
	return err
}

func (m *MockProvider) before(op, code string) error {
	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(op, code)
}

func (m *MockProvider) after(op, code string, err error) {
	m.record(CallRecord{Op: op, Code: code, Err: err, Timestamp: time.Now()})
}

var _ provider.Provider = (*MockProvider)(nil)

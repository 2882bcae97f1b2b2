package tencent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/provider"
)

// quoteLine 构造一条 GBK 编码的腾讯行情
func quoteLine(t *testing.T, prefix, code, name string) string {
	t.Helper()
	gbkName, err := simplifiedchinese.GBK.NewEncoder().String(name)
	require.NoError(t, err)

	fields := make([]string, 52)
	for i := range fields {
		fields[i] = "0"
	}
	fields[0] = "1"
	fields[1] = gbkName
	fields[2] = code
	fields[3] = "10.50"
	fields[4] = "10.20"
	fields[5] = "10.30"
	fields[6] = "123456"
	fields[30] = "20250110150003"
	fields[32] = "2.94"
	fields[33] = "10.80"
	fields[34] = "10.10"
	fields[35] = "10.50/123456/129600000"
	fields[39] = "5.12"
	fields[46] = ""
	return "v_" + prefix + code + "=\"" + strings.Join(fields, "~") + "\";"
}

type quoteServer struct {
	mu    sync.Mutex
	paths []string
	body  string
	code  int
}

func newQuoteServer(t *testing.T, body string, status int) (*httptest.Server, *quoteServer) {
	qs := &quoteServer{body: body, code: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		qs.mu.Lock()
		qs.paths = append(qs.paths, r.URL.Path)
		qs.mu.Unlock()
		w.WriteHeader(qs.code)
		_, _ = w.Write([]byte(qs.body))
	}))
	t.Cleanup(srv.Close)
	return srv, qs
}

func TestParseQuotes(t *testing.T) {
	t.Run("正常解析", func(t *testing.T) {
		quotes := parseQuotes(quoteLine(t, "sh", "600000", "浦发银行") + "\n" + quoteLine(t, "sz", "000001", "平安银行"))
		require.Len(t, quotes, 2)

		q := quotes[0]
		assert.Equal(t, "600000", q.Code)
		assert.Equal(t, "浦发银行", q.Name, "名称应从GBK解码")
		assert.Equal(t, 10.5, *q.Price)
		assert.Equal(t, 12345600.0, *q.Volume, "成交量应从手转换为股")
		assert.Equal(t, 129600000.0, *q.Amount)
		assert.Equal(t, 5.12, *q.PE)
		assert.Nil(t, q.PB, "空字段应为nil")
		assert.Equal(t, "平安银行", quotes[1].Name)
	})

	t.Run("空数据与未匹配", func(t *testing.T) {
		assert.Empty(t, parseQuotes(""))
		assert.Empty(t, parseQuotes(`v_pv_none_match="1";`))
	})

	t.Run("不完整数据被忽略", func(t *testing.T) {
		assert.Empty(t, parseQuotes(`v_sh600000="1~浦发~600000~10.5";`))
	})
}

func TestParseTime(t *testing.T) {
	assert.Equal(t, "2025-01-10", parseTime("20250110150003").Format("2006-01-02"))
	assert.Equal(t, "2025-01-10", parseTime("202501101500").Format("2006-01-02"))
	assert.True(t, parseTime("bad").IsZero())
}

func TestProvider_QueryBasicInfo(t *testing.T) {
	srv, qs := newQuoteServer(t, quoteLine(t, "sh", "600000", "浦发银行"), http.StatusOK)
	p := NewProvider(WithBaseURL(srv.URL + "/q="))

	info, err := p.QueryBasicInfo(context.Background(), "sh.600000")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "600000", info.Code)
	assert.Equal(t, "浦发银行", info.Name)
	assert.Equal(t, []string{"/q=sh600000"}, qs.paths)

	industry, err := p.QueryIndustry(context.Background(), "sh.600000")
	assert.NoError(t, err)
	assert.Empty(t, industry, "腾讯不提供行业")
}

func TestProvider_QueryHistory(t *testing.T) {
	srv, _ := newQuoteServer(t, quoteLine(t, "sz", "000001", "平安银行"), http.StatusOK)
	p := NewProvider(WithBaseURL(srv.URL + "/q="))

	rows, err := p.QueryHistory(context.Background(), provider.HistoryQuery{Code: "sz.000001", Fields: provider.SnapshotFields})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-01-10", rows[0].Date)
	assert.Equal(t, "sz.000001", rows[0].Code)
	assert.Equal(t, 10.5, *rows[0].Close)
	assert.Equal(t, 2.94, *rows[0].PctChg)
	assert.Equal(t, 12345600.0, *rows[0].Volume, "日线成交量单位为股，与东方财富一致")
	assert.Nil(t, rows[0].PsTTM)
}

func TestProvider_NoMatch(t *testing.T) {
	srv, _ := newQuoteServer(t, `v_pv_none_match="1";`, http.StatusOK)
	p := NewProvider(WithBaseURL(srv.URL + "/q="))

	info, err := p.QueryBasicInfo(context.Background(), "sh.600999")
	assert.NoError(t, err)
	assert.Nil(t, info)

	_, err = p.QueryHistory(context.Background(), provider.HistoryQuery{Code: "sh.600999"})
	assert.True(t, errors.Is(err, stockerr.ErrEmptyResult))
	assert.True(t, stockerr.IsRecoverable(err))
}

func TestProvider_HTTPError(t *testing.T) {
	srv, _ := newQuoteServer(t, "", http.StatusInternalServerError)
	p := NewProvider(WithBaseURL(srv.URL + "/q="))

	_, err := p.QueryBasicInfo(context.Background(), "sh.600000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, stockerr.ErrQueryFailed))
	assert.False(t, stockerr.IsFatal(err))
}

func TestProvider_SessionIsNoop(t *testing.T) {
	p := NewProvider()
	assert.Equal(t, "tencent", p.Name())
	assert.NoError(t, p.Login(context.Background()))
	assert.NoError(t, p.Logout(context.Background()))

	_, err := p.QueryStockList(context.Background())
	assert.Error(t, err)
}

func TestBuildURL(t *testing.T) {
	p := NewProvider()
	assert.Equal(t, DefaultBaseURL+"sh600000", p.buildURL("sh.600000"))
	assert.Equal(t, DefaultBaseURL+"sz000001", p.buildURL("1"))
	assert.Equal(t, DefaultBaseURL+"bj830799", p.buildURL("830799"))
}

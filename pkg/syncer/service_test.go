package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/model"
	"stocksync/pkg/provider"
	"stocksync/pkg/testkit/providers"
)

type publisherFunc func(ctx context.Context, stats *Stats) error

func (f publisherFunc) Publish(ctx context.Context, stats *Stats) error { return f(ctx, stats) }

func newTestService(t *testing.T, m *providers.MockProvider, opts ...ServiceOption) *Service {
	sl := &recordingSleeper{}
	opts = append([]ServiceOption{
		WithServiceClock(clock),
		WithSyncOptions(WithSleeper(sl.Sleep)),
	}, opts...)
	return NewService(newStore(t), m, opts...)
}

func TestService_CheckAndUpdate_ValidCacheSkips(t *testing.T) {
	m := providers.NewMockProvider()
	svc := newTestService(t, m)
	svc.Store().Put(skeleton("600000"))
	require.NoError(t, svc.Store().Save())

	stats, err := svc.CheckAndUpdate(context.Background(), false)
	require.NoError(t, err)
	assert.Nil(t, stats)
	assert.Equal(t, 0, m.Count(providers.OpLogin, ""))
}

func TestService_CheckAndUpdate_InitializesEmptyCache(t *testing.T) {
	m := providers.NewMockProvider().SetStockList(
		provider.BasicInfo{Code: "600000", Name: "浦发银行"},
		provider.BasicInfo{Code: "000001", Name: "平安银行"},
	)
	healthy(m, "600000", "浦发银行", 10)
	healthy(m, "000001", "平安银行", 12)
	svc := newTestService(t, m)

	stats, err := svc.CheckAndUpdate(context.Background(), false)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, "gradual-retry", stats.Profile)
	assert.Equal(t, 2, stats.Successes)

	status := svc.Status()
	assert.True(t, status.IsValid)
	assert.Equal(t, 2, status.TotalCount)
}

func TestService_QueryStock(t *testing.T) {
	m := providers.NewMockProvider()
	healthy(m, "600519", "贵州茅台", 1500)
	svc := newTestService(t, m)
	svc.Store().Put(skeleton("000001"))

	rec, ok, err := svc.QueryStock(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "000001", rec.Code)
	assert.Equal(t, 0, m.Count(providers.OpLogin, ""), "缓存命中不登录")

	rec, ok, err = svc.QueryStock(context.Background(), "600519")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "贵州茅台", rec.Name)
	assert.Equal(t, 1, m.Count(providers.OpLogout, ""), "单独拉取后关闭会话")
	_, cached := svc.Store().Get("600519")
	assert.True(t, cached)

	_, ok, err = svc.QueryStock(context.Background(), "600999")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_QueryStock_LoginFailure(t *testing.T) {
	m := providers.NewMockProvider().FailLogins(errors.New("denied"))
	svc := newTestService(t, m)

	_, ok, err := svc.QueryStock(context.Background(), "600519")
	assert.False(t, ok)
	assert.True(t, stockerr.IsFatal(err))
}

func TestService_PublishesStatsAndRejectsOverlap(t *testing.T) {
	m := providers.NewMockProvider()
	healthy(m, "600000", "浦发银行", 10)

	var svc *Service
	var published []*Stats
	var nestedErr error
	svc = newTestService(t, m, WithPublisher(publisherFunc(func(ctx context.Context, stats *Stats) error {
		published = append(published, stats)
		_, nestedErr = svc.Financial(ctx)
		return errors.New("sink down")
	})))
	svc.Store().Put(skeleton("600000"))

	stats, err := svc.Gradual(context.Background(), false)
	require.NoError(t, err, "发布失败不影响结果")
	require.Len(t, published, 1)
	assert.Same(t, stats, published[0])
	assert.True(t, errors.Is(nestedErr, ErrRunInProgress))

	_, err = svc.Financial(context.Background())
	assert.NotErrorIs(t, err, ErrRunInProgress, "运行结束后释放")
}

func TestService_FilterByMarketCap(t *testing.T) {
	svc := newTestService(t, providers.NewMockProvider())
	for code, closePrice := range map[string]float64{"600000": 10, "000001": 120.5, "300750": 200} {
		rec := skeleton(code)
		rec.ClosePrice = model.Float(closePrice)
		rec.MarketCap = model.EstimateMarketCap(code, rec.ClosePrice)
		svc.Store().Put(rec)
	}
	svc.Store().Put(skeleton("600001"))

	all := svc.FilterByMarketCap(nil, nil)
	require.Len(t, all, 3)
	assert.Equal(t, "000001", all[0].Code)

	small := svc.FilterByMarketCap(nil, model.Float(2e10))
	require.Len(t, small, 1)
	assert.Equal(t, "600000", small[0].Code)
}

func TestService_Profiles(t *testing.T) {
	custom := FinancialProfile()
	custom.Delay = 0
	svc := NewService(newStore(t), providers.NewMockProvider(), WithProfile(custom), WithValidityDays(30))
	p, ok := svc.Profile("financial")
	require.True(t, ok)
	assert.Equal(t, custom, p)
	assert.Equal(t, 30, svc.validityDays)
}

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksync/pkg/model"
)

func seedStore(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t, time.Now())
	add := func(code, name, industry string, closePrice *float64) {
		s.Put(model.StockRecord{
			Code:     code,
			Name:     name,
			Industry: industry,
			MarketSnapshot: model.MarketSnapshot{
				ClosePrice: closePrice,
				MarketCap:  model.EstimateMarketCap(code, closePrice),
			},
		})
	}
	add("600519", "贵州茅台", "酿酒行业", model.Float(1500)) // 2.25e12
	add("000001", "平安银行", "银行", model.Float(10))       // 8e9
	add("600000", "浦发银行", "银行", model.Float(8))        // 1.2e10
	add("300750", "宁德时代", "电池", nil)
	add("688981", "中芯国际", "", model.Float(0))
	return s
}

func TestGetStocksByMarketCap(t *testing.T) {
	s := seedStore(t)

	all := s.GetStocksByMarketCap(nil, nil)
	require.Len(t, all, 3, "市值未知的股票不参与筛选")
	assert.Equal(t, "600519", all[0].Code)
	assert.Equal(t, "600000", all[1].Code)
	assert.Equal(t, "000001", all[2].Code)

	mid := s.GetStocksByMarketCap(model.Float(5e9), model.Float(1e11))
	require.Len(t, mid, 2)
	assert.Equal(t, "600000", mid[0].Code)

	assert.Empty(t, s.GetStocksByMarketCap(model.Float(1e13), nil))
}

func TestGetStockInfo(t *testing.T) {
	s := seedStore(t)
	rec, ok := s.GetStockInfo("1")
	require.True(t, ok)
	assert.Equal(t, "平安银行", rec.Name)

	_, ok = s.GetStockInfo("999999")
	assert.False(t, ok)
}

func TestSearchAndIndustryStats(t *testing.T) {
	s := seedStore(t)
	found := s.SearchByName("银行")
	assert.Len(t, found, 2)

	stats := s.IndustryStats()
	require.NotEmpty(t, stats)
	assert.Equal(t, IndustryCount{Industry: "银行", Count: 2}, stats[0])
	assert.Contains(t, stats, IndustryCount{Industry: model.IndustryUnknown, Count: 1})
}

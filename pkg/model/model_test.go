package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketOf(t *testing.T) {
	tests := []struct {
		code string
		want Market
	}{
		{"600000", MarketShanghai},
		{"688981", MarketShanghai},
		{"900901", MarketShanghai},
		{"000001", MarketShenzhen},
		{"300750", MarketShenzhen},
		{"830799", MarketBeijing},
		{"430047", MarketUnknown},
		{"1", MarketShenzhen}, // 补齐为 000001
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MarketOf(tt.code), tt.code)
	}
}

func TestMarketCode(t *testing.T) {
	assert.Equal(t, "sh.600000", MarketCode("600000"))
	assert.Equal(t, "sz.000001", MarketCode("000001"))
	assert.Equal(t, "bj.830799", MarketCode("830799"))
	assert.Equal(t, "000001", NormalizeCode("sz.000001"))
	assert.True(t, ValidCode("000001"))
	assert.False(t, ValidCode("00001a"))
	assert.False(t, ValidCode("0000011"))
}

func TestEstimateMarketCap(t *testing.T) {
	// 收盘价 120.5，000 前缀估算 8 亿股
	mc := EstimateMarketCap("000001", Float(120.5))
	require.NotNil(t, mc)
	assert.InDelta(t, 9.64e10, *mc, 1)

	assert.Equal(t, 4e8, EstimatedShares("300750"))
	assert.Equal(t, 15e8, EstimatedShares("605499"))
	assert.Equal(t, 6e8, EstimatedShares("688981"))
	assert.Equal(t, 10e8, EstimatedShares("830799"))
}

func TestEstimateMarketCap_NullWithoutPrice(t *testing.T) {
	for _, code := range []string{"000001", "300750", "600000", "688981", "830799"} {
		assert.Nil(t, EstimateMarketCap(code, nil), code)
		assert.Nil(t, EstimateMarketCap(code, Float(0)), code)
		assert.Nil(t, EstimateMarketCap(code, Float(-1)), code)
	}
}

func TestMerge_PreservesAbsentFields(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	existing := StockRecord{
		Code:                "000001",
		Name:                "平安银行",
		Industry:            "J66货币金融服务",
		ListDate:            "1991-04-03",
		ListStatus:          ListingActive,
		DetailedInfoUpdated: true,
		MarketSnapshot: MarketSnapshot{
			ClosePrice: Float(10.5),
			MarketCap:  Float(8.4e9),
		},
	}

	// 只更新行情，基本信息未获取
	merged := Merge(existing, Patch{
		Snapshot:  &MarketSnapshot{ClosePrice: Float(11), MarketCap: Float(8.8e9)},
		UpdatedAt: now,
	})
	assert.Equal(t, "平安银行", merged.Name)
	assert.Equal(t, "J66货币金融服务", merged.Industry)
	assert.Equal(t, "1991-04-03", merged.ListDate)
	assert.Equal(t, 11.0, *merged.ClosePrice)
	assert.True(t, merged.DetailedInfoUpdated)
	assert.Equal(t, now, merged.LastUpdated.Time)

	// 空 patch 不改变任何已知字段
	again := Merge(merged, Patch{})
	assert.Equal(t, merged, again)
}

func TestMerge_DetailedFlag(t *testing.T) {
	now := time.Now()
	skeleton := NewSkeleton("600000", "浦发银行", "1999-11-10", ListingActive, NewTimestamp(now))
	assert.False(t, skeleton.DetailedInfoUpdated)
	assert.Equal(t, IndustryPending, skeleton.Industry)

	partial := Merge(skeleton, Patch{Snapshot: &MarketSnapshot{}, UpdatedAt: now})
	assert.False(t, partial.DetailedInfoUpdated, "跳过基本信息时不能标记为已完成")

	full := Merge(skeleton, Patch{Industry: String("银行"), BasicFetched: true, UpdatedAt: now})
	assert.True(t, full.DetailedInfoUpdated)
	assert.Equal(t, now, full.LastDetailedUpdate.Time)
}

func TestMerge_RederivesMarket(t *testing.T) {
	rec := StockRecord{Code: "600000", Market: MarketShenzhen}
	merged := Merge(rec, Patch{})
	assert.Equal(t, MarketShanghai, merged.Market)
}

func TestTimestamp_JSON(t *testing.T) {
	var rec StockRecord
	raw := `{"code":"000001","last_updated":"2025-08-01T09:30:00.123456","last_detailed_update":null,"close_price":null}`
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, 2025, rec.LastUpdated.Year())
	assert.True(t, rec.LastDetailedUpdate.IsZero())
	assert.Nil(t, rec.ClosePrice)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"last_detailed_update":null`)
	assert.Contains(t, string(out), `"market_cap":null`)

	_, err = ParseTimestamp("not-a-time")
	assert.Error(t, err)
}

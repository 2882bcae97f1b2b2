package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"stocksync/pkg/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "stock_info_cache.json"), WithClock(fixedClock(now)))
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := newTestStore(t, time.Now())

	err := s.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSnapshotMissing))
	assert.Equal(t, 0, s.Len())

	var ce *CacheError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, s.Path(), ce.Path)
	assert.True(t, ce.Warning())
}

func TestStore_LoadCorruptedFile(t *testing.T) {
	s := newTestStore(t, time.Now())
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	err := s.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSnapshotCorrupted))
	assert.Equal(t, 0, s.Len())

	// 损坏后仍然可用
	s.Put(model.StockRecord{Code: "000001"})
	assert.Equal(t, 1, s.Len())
}

func TestStore_SaveAndLoad(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.Local)
	s := newTestStore(t, now)
	s.Put(model.NewSkeleton("600000", "浦发银行", "1999-11-10", model.ListingActive, model.NewTimestamp(now)))
	s.Put(model.StockRecord{
		Code:           "000001",
		Name:           "平安银行",
		MarketSnapshot: model.MarketSnapshot{ClosePrice: model.Float(12.3), MarketCap: model.EstimateMarketCap("000001", model.Float(12.3))},
	})
	require.NoError(t, s.Save())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(2), gjson.GetBytes(data, "total_count").Int())
	assert.Equal(t, DefaultDataSource, gjson.GetBytes(data, "data_source").String())
	assert.Equal(t, 2, len(gjson.GetBytes(data, "stocks").Map()))
	_, err = os.Stat(s.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "临时文件应被重命名")

	loaded := NewStore(s.Path(), WithClock(fixedClock(now)))
	require.NoError(t, loaded.Load())
	assert.Equal(t, 2, loaded.Len())

	rec, ok := loaded.Get("000001")
	require.True(t, ok)
	assert.Equal(t, "平安银行", rec.Name)
	assert.Equal(t, model.MarketShenzhen, rec.Market)
	require.NotNil(t, rec.MarketCap)
	assert.InDelta(t, 12.3*8e8, *rec.MarketCap, 1)

	skeleton, ok := loaded.Get("600000")
	require.True(t, ok)
	assert.False(t, skeleton.DetailedInfoUpdated)
	assert.Equal(t, model.IndustryPending, skeleton.Industry)
	assert.Nil(t, skeleton.MarketCap)
}

func TestStore_ReloadKeepsDataOnFailure(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.Local)
	writer := newTestStore(t, now)
	writer.Put(model.StockRecord{Code: "600000", Name: "浦发银行"})
	require.NoError(t, writer.Save())

	reader := NewStore(writer.Path(), WithClock(fixedClock(now)))
	require.NoError(t, reader.Load())
	require.Equal(t, 1, reader.Len())

	require.NoError(t, os.WriteFile(writer.Path(), []byte("{not json"), 0o644))
	err := reader.Reload()
	assert.True(t, errors.Is(err, ErrSnapshotCorrupted))
	assert.Equal(t, 1, reader.Len(), "读取失败时保留原有记录")
	_, ok := reader.Get("600000")
	assert.True(t, ok)

	require.NoError(t, os.Remove(writer.Path()))
	assert.True(t, errors.Is(reader.Reload(), ErrSnapshotMissing))
	assert.Equal(t, 1, reader.Len())

	writer.Put(model.StockRecord{Code: "000001", Name: "平安银行"})
	require.NoError(t, writer.Save())
	require.NoError(t, reader.Reload())
	assert.Equal(t, 2, reader.Len())
	assert.ElementsMatch(t, []string{"600000", "000001"}, reader.Codes())
}

func TestStore_SaveOverwritesCount(t *testing.T) {
	s := newTestStore(t, time.Now())
	s.Put(model.StockRecord{Code: "000001"})
	require.NoError(t, s.Save())
	s.Put(model.StockRecord{Code: "000002"})
	s.Put(model.StockRecord{Code: "000003"})
	require.NoError(t, s.Save())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(3), gjson.GetBytes(data, "total_count").Int())
	assert.Equal(t, 3, len(gjson.GetBytes(data, "stocks").Map()))
}

func TestStore_LoadKeepsFileOrderAndFixesMarket(t *testing.T) {
	s := newTestStore(t, time.Now())
	raw := `{
  "last_update": "2025-07-01T10:00:00.000001",
  "data_source": "baostock",
  "total_count": 3,
  "stocks": {
    "600519": {"code": "600519", "name": "贵州茅台", "market": "深圳"},
    "000001": {"name": "平安银行"},
    "300750": {"code": "300750", "name": "宁德时代", "detailed_info_updated": true}
  }
}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(raw), 0o644))
	require.NoError(t, s.Load())

	assert.Equal(t, []string{"600519", "000001", "300750"}, s.Codes())
	rec, _ := s.Get("600519")
	assert.Equal(t, model.MarketShanghai, rec.Market, "交易所必须由代码推导")
	rec, _ = s.Get("000001")
	assert.Equal(t, "000001", rec.Code)
	assert.Equal(t, []string{"600519", "000001"}, s.Pending(true))
	assert.Equal(t, []string{"600519", "000001", "300750"}, s.Pending(false))
}

func TestStore_IsValid(t *testing.T) {
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.Local)
	s := newTestStore(t, now)

	assert.False(t, s.IsValid(15), "无快照时无效")

	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"stocks":{}}`), 0o644))
	assert.False(t, s.IsValid(15), "缺少 last_update 时无效")

	write := func(last time.Time) {
		raw := `{"last_update":"` + last.Format("2006-01-02T15:04:05.000000") + `","stocks":{}}`
		require.NoError(t, os.WriteFile(s.Path(), []byte(raw), 0o644))
	}

	write(now.Add(-14*24*time.Hour - time.Hour))
	assert.True(t, s.IsValid(15))
	assert.True(t, s.IsValid(15), "重复调用结果一致")

	write(now.Add(-15 * 24 * time.Hour))
	assert.False(t, s.IsValid(15))
}

func TestStore_IsValidIgnoresRecords(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, now)
	// 记录部分是损坏的，但有效性检查只看元数据
	raw := `{"last_update":"` + now.Format(time.RFC3339Nano) + `","stocks":{"000001": 12}}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(raw), 0o644))
	assert.True(t, s.IsValid(15))
}

func TestStore_Status(t *testing.T) {
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.Local)
	s := newTestStore(t, now)

	st := s.Status(15)
	assert.Nil(t, st.LastUpdate)
	assert.False(t, st.IsValid)

	s = NewStore(s.Path(), WithClock(fixedClock(now.Add(-3*24*time.Hour))), WithDataSource("eastmoney"))
	s.Put(model.StockRecord{Code: "000001"})
	require.NoError(t, s.Save())

	s = NewStore(s.Path(), WithClock(fixedClock(now)))
	st = s.Status(15)
	require.NotNil(t, st.AgeDays)
	assert.Equal(t, 3, *st.AgeDays)
	assert.True(t, st.IsValid)
	assert.Equal(t, "eastmoney", st.DataSource)
	assert.Equal(t, 1, st.TotalCount)
}

func TestStore_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	// 以文件占用目录位置，使 MkdirAll 失败
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewStore(filepath.Join(blocker, "cache.json"))
	s.Put(model.StockRecord{Code: "000001"})
	err := s.Save()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERSISTENCE_FAILED")
}

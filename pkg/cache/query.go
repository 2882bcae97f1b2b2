package cache

import (
	"sort"
	"strings"

	"stocksync/pkg/model"
)

// GetStockInfo 下游选股使用：按代码查询缓存记录
func (s *Store) GetStockInfo(code string) (model.StockRecord, bool) {
	return s.Get(code)
}

// GetStocksByMarketCap 按市值区间筛选，市值未知的股票不参与，结果按市值降序
func (s *Store) GetStocksByMarketCap(minCap, maxCap *float64) []model.StockRecord {
	var result []model.StockRecord
	for _, rec := range s.Records() {
		if rec.MarketCap == nil {
			continue
		}
		mc := *rec.MarketCap
		if minCap != nil && mc < *minCap {
			continue
		}
		if maxCap != nil && mc > *maxCap {
			continue
		}
		result = append(result, rec)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return *result[i].MarketCap > *result[j].MarketCap
	})
	return result
}

// SearchByName 名称包含关键字的股票
func (s *Store) SearchByName(keyword string) []model.StockRecord {
	var result []model.StockRecord
	for _, rec := range s.Records() {
		if strings.Contains(rec.Name, keyword) {
			result = append(result, rec)
		}
	}
	return result
}

// IndustryCount 行业及其股票数
type IndustryCount struct {
	Industry string `json:"industry"`
	Count    int    `json:"count"`
}

// IndustryStats 行业分布，按数量降序
func (s *Store) IndustryStats() []IndustryCount {
	counts := make(map[string]int)
	for _, rec := range s.Records() {
		industry := rec.Industry
		if industry == "" {
			industry = model.IndustryUnknown
		}
		counts[industry]++
	}

	stats := make([]IndustryCount, 0, len(counts))
	for industry, n := range counts {
		stats = append(stats, IndustryCount{Industry: industry, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Industry < stats[j].Industry
	})
	return stats
}

// Pending 待更新的代码：detailOnly 时只返回尚未完成详细信息更新的股票
func (s *Store) Pending(detailOnly bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var codes []string
	for _, code := range s.order {
		if detailOnly && s.records[code].DetailedInfoUpdated {
			continue
		}
		codes = append(codes, code)
	}
	return codes
}

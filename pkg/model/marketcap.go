package model

import "strings"

// 按代码前缀估算的总股本，是固定的经验值而非真实股本数据
var shareEstimates = []struct {
	prefixes []string
	shares   float64
}{
	{[]string{"000", "001", "002"}, 8e8},
	{[]string{"300", "301"}, 4e8},
	{[]string{"600", "601", "603", "605"}, 15e8},
	{[]string{"688"}, 6e8},
}

const defaultShareEstimate = 10e8

// EstimatedShares 返回代码对应的估算股本
func EstimatedShares(code string) float64 {
	code = NormalizeCode(code)
	for _, e := range shareEstimates {
		for _, p := range e.prefixes {
			if strings.HasPrefix(code, p) {
				return e.shares
			}
		}
	}
	return defaultShareEstimate
}

// EstimateMarketCap 收盘价 × 估算股本；收盘价缺失或不大于0时返回 nil，从不返回0
func EstimateMarketCap(code string, closePrice *float64) *float64 {
	if closePrice == nil || *closePrice <= 0 {
		return nil
	}
	return Float(*closePrice * EstimatedShares(code))
}

package tencent

import (
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"stocksync/pkg/provider"
)

// Quote 腾讯行情中与元数据同步相关的字段
type Quote struct {
	Code      string
	Name      string
	Price     *float64
	PrevClose *float64
	Open      *float64
	High      *float64
	Low       *float64
	Volume    *float64 // 股
	Amount    *float64 // 元
	PctChg    *float64
	PE        *float64
	PB        *float64
	Timestamp time.Time
}

// minQuoteFields 行情串中字段少于此数视为不完整
const minQuoteFields = 50

// gbkToUtf8 将GBK编码转换为UTF-8
func gbkToUtf8(gbkStr string) string {
	if gbkStr == "" {
		return ""
	}

	reader := transform.NewReader(strings.NewReader(gbkStr), simplifiedchinese.GBK.NewDecoder())
	data, err := io.ReadAll(reader)
	if err != nil {
		return gbkStr
	}

	return string(data)
}

// parseQuotes 解析 v_sh600000="1~名称~600000~..."; 形式的响应。
// 未匹配的代码（v_pv_none_match）与不完整的行情会被跳过
func parseQuotes(data string) []Quote {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil
	}

	var results []Quote
	for _, item := range strings.Split(data, ";") {
		item = strings.TrimSpace(item)
		equalIndex := strings.Index(item, "=")
		if equalIndex == -1 || equalIndex+1 >= len(item) {
			continue
		}

		fields := strings.Split(strings.Trim(item[equalIndex+1:], "\""), "~")
		if len(fields) < minQuoteFields {
			continue
		}

		q := Quote{
			Code:      extractSymbol(fields[2]),
			Name:      gbkToUtf8(fields[1]),
			Price:     provider.ParseCell(fields[3]),
			PrevClose: provider.ParseCell(fields[4]),
			Open:      provider.ParseCell(fields[5]),
			Volume:    provider.ParseCell(fields[6]),
			PctChg:    provider.ParseCell(fields[32]),
			High:      provider.ParseCell(fields[33]),
			Low:       provider.ParseCell(fields[34]),
			Amount:    parseTurnover(fields[35]),
			PE:        provider.ParseCell(fields[39]),
			PB:        provider.ParseCell(fields[46]),
			Timestamp: parseTime(fields[30]),
		}
		// 成交量从手转换为股
		if q.Volume != nil {
			v := *q.Volume * 100
			q.Volume = &v
		}
		results = append(results, q)
	}
	return results
}

// historyRow 把实时行情转换为一行日线
func (q Quote) historyRow(marketCode string) provider.HistoryRow {
	row := provider.HistoryRow{
		Code:     marketCode,
		Open:     q.Open,
		High:     q.High,
		Low:      q.Low,
		Close:    q.Price,
		PreClose: q.PrevClose,
		Volume:   q.Volume,
		Amount:   q.Amount,
		PctChg:   q.PctChg,
		PeTTM:    q.PE,
		PbMRQ:    q.PB,
	}
	if !q.Timestamp.IsZero() {
		row.Date = q.Timestamp.Format("2006-01-02")
	}
	return row
}

// extractSymbol 从股票代码中提取纯符号
func extractSymbol(rawSymbol string) string {
	rawSymbol = strings.TrimPrefix(rawSymbol, "sh")
	rawSymbol = strings.TrimPrefix(rawSymbol, "sz")
	rawSymbol = strings.TrimPrefix(rawSymbol, "bj")

	if dotIndex := strings.Index(rawSymbol, "."); dotIndex != -1 {
		rawSymbol = rawSymbol[:dotIndex]
	}

	return rawSymbol
}

// parseTime 解析 YYYYMMDDhhmmss 或 YYYYMMDDhhmm，失败返回零值
func parseTime(timeStr string) time.Time {
	var layout string
	switch len(timeStr) {
	case 14:
		layout = "20060102150405"
	case 12:
		layout = "200601021504"
	default:
		return time.Time{}
	}

	t, err := time.ParseInLocation(layout, timeStr, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseTurnover 从 最新价/成交量/成交额 复合字段中提取成交额
func parseTurnover(s string) *float64 {
	parts := strings.Split(s, "/")
	if len(parts) >= 3 {
		return provider.ParseCell(parts[2])
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return nil
	}
	return provider.ParseCell(s)
}

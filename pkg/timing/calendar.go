// Package timing A股交易时段判断，供定时任务决定是否执行。
package timing

import (
	"time"
)

// 交易时段，按 HH:MM:SS 字符串比较
const (
	morningOpen    = "09:30:00"
	morningClose   = "11:30:00"
	afternoonOpen  = "13:00:00"
	afternoonClose = "15:00:00"
)

var shanghai = loadShanghai()

func loadShanghai() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// Calendar 交易日历，只区分工作日与周末，不含法定节假日
type Calendar struct {
	now func() time.Time
}

// NewCalendar now 为 nil 时使用系统时间
func NewCalendar(now func() time.Time) *Calendar {
	if now == nil {
		now = time.Now
	}
	return &Calendar{now: now}
}

// Now 北京时间的当前时刻
func (c *Calendar) Now() time.Time {
	return c.now().In(shanghai)
}

// IsTradingDay 周一到周五
func (c *Calendar) IsTradingDay(t time.Time) bool {
	weekday := t.In(shanghai).Weekday()
	return weekday >= time.Monday && weekday <= time.Friday
}

// IsTradingTime 当前是否处于连续竞价时段
func (c *Calendar) IsTradingTime() bool {
	now := c.Now()
	if !c.IsTradingDay(now) {
		return false
	}
	clock := now.Format("15:04:05")
	return (clock >= morningOpen && clock <= morningClose) ||
		(clock >= afternoonOpen && clock <= afternoonClose)
}

// IsAfterClose 交易日收盘之后，当日日线已可取
func (c *Calendar) IsAfterClose() bool {
	now := c.Now()
	return c.IsTradingDay(now) && now.Format("15:04:05") > afternoonClose
}

// LastSessionDate 最近一个已收盘交易日，YYYY-MM-DD
func (c *Calendar) LastSessionDate() string {
	day := c.Now()
	if !c.IsAfterClose() {
		day = day.AddDate(0, 0, -1)
	}
	for !c.IsTradingDay(day) {
		day = day.AddDate(0, 0, -1)
	}
	return day.Format("2006-01-02")
}

package syncer

import (
	"context"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/logger"
	"stocksync/pkg/model"
	"stocksync/pkg/provider"
)

// aShareCode 沪深A股主板、中小板、创业板、科创板
var aShareCode = regexp.MustCompile(`^(000|001|002|300|301|600|601|603|605|688)\d{3}$`)

// IsAShare 是否为纳入缓存的A股代码
func IsAShare(code string) bool {
	return aShareCode.MatchString(model.NormalizeCode(code))
}

// InitResult 初始化结果
type InitResult struct {
	Listed  int `json:"listed"`  // 数据源返回的证券数
	Matched int `json:"matched"` // 其中的A股数
	Added   int `json:"added"`   // 写入的骨架记录数
	Skipped int `json:"skipped"` // 已有行情而跳过的数
}

// Initializer 从证券列表建立骨架记录
type Initializer struct {
	store    RecordStore
	provider provider.Provider
	now      func() time.Time
	log      *logrus.Entry
}

// NewInitializer 创建初始化器
func NewInitializer(store RecordStore, p provider.Provider, now func() time.Time) *Initializer {
	if now == nil {
		now = time.Now
	}
	return &Initializer{
		store:    store,
		provider: p,
		now:      now,
		log:      logger.WithComponent("Initializer"),
	}
}

// Run 拉取证券列表，为没有行情的A股写入骨架记录并保存
func (in *Initializer) Run(ctx context.Context) (InitResult, error) {
	var result InitResult
	in.log.Info("开始初始化A股代码列表...")

	var list []provider.BasicInfo
	err := provider.WithSession(ctx, in.provider, func(*provider.Session) error {
		var err error
		list, err = in.provider.QueryStockList(ctx)
		return err
	})
	if err != nil {
		in.log.WithError(err).Error("获取股票列表失败")
		return result, err
	}
	if len(list) == 0 {
		return result, stockerr.NewEmptyResultError("query_stock_list", "all")
	}
	result.Listed = len(list)

	now := model.NewTimestamp(in.now())
	for _, info := range list {
		code := model.NormalizeCode(info.Code)
		if !aShareCode.MatchString(code) {
			continue
		}
		result.Matched++
		if existing, ok := in.store.Get(code); ok && existing.HasPrice() {
			result.Skipped++
			continue
		}
		in.store.Put(model.NewSkeleton(code, info.Name, info.IPODate, info.ListStatus(), now))
		result.Added++
	}

	if err := in.store.Save(); err != nil {
		in.log.WithError(err).Error("保存缓存失败")
		return result, err
	}
	in.log.WithFields(logrus.Fields{
		"matched": result.Matched,
		"added":   result.Added,
		"skipped": result.Skipped,
	}).Info("A股代码列表初始化完成")
	return result, nil
}

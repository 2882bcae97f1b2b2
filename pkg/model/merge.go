package model

import "time"

// Patch 一次拉取得到的部分记录，nil 字段表示本次未获取（跳过或失败）
type Patch struct {
	Name       *string
	Industry   *string
	ListDate   *string
	ListStatus *ListingStatus

	// Snapshot 非 nil 时整体替换行情与估值，包括其中的 null 值
	Snapshot *MarketSnapshot

	// BasicFetched 本次是否完整获取了基本信息
	BasicFetched bool
	UpdatedAt    time.Time
}

// Merge 把 patch 合并到 existing 上：出现的字段覆盖，缺失的字段保留原值
func Merge(existing StockRecord, patch Patch) StockRecord {
	merged := existing

	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.Industry != nil {
		merged.Industry = *patch.Industry
	}
	if patch.ListDate != nil {
		merged.ListDate = *patch.ListDate
	}
	if patch.ListStatus != nil {
		merged.ListStatus = *patch.ListStatus
	}
	if patch.Snapshot != nil {
		merged.MarketSnapshot = *patch.Snapshot
	}

	merged.Market = MarketOf(merged.Code)

	if !patch.UpdatedAt.IsZero() {
		merged.LastUpdated = NewTimestamp(patch.UpdatedAt)
	}
	if patch.BasicFetched || existing.DetailedInfoUpdated {
		merged.DetailedInfoUpdated = true
		if !patch.UpdatedAt.IsZero() {
			merged.LastDetailedUpdate = NewTimestamp(patch.UpdatedAt)
		}
	}
	return merged
}

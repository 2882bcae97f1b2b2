// Package sqlite 把快照记录镜像到 SQLite，供下游选股程序用 SQL 读取。
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/logger"
	"stocksync/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS stock_info (
	code                  TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	industry              TEXT,
	market                TEXT,
	list_date             TEXT,
	list_status           TEXT,
	last_updated          TEXT,
	detailed_info_updated INTEGER NOT NULL DEFAULT 0,
	last_detailed_update  TEXT,
	trade_date            TEXT,
	open_price            REAL,
	high_price            REAL,
	low_price             REAL,
	close_price           REAL,
	volume                REAL,
	amount                REAL,
	pct_chg               REAL,
	pe_ttm                REAL,
	pb_mrq                REAL,
	ps_ttm                REAL,
	pcf_ttm               REAL,
	market_cap            REAL
);
CREATE INDEX IF NOT EXISTS idx_stock_info_market_cap ON stock_info(market_cap);
CREATE INDEX IF NOT EXISTS idx_stock_info_industry ON stock_info(industry);
`

const columns = `code, name, industry, market, list_date, list_status, last_updated,
	detailed_info_updated, last_detailed_update, trade_date, open_price, high_price,
	low_price, close_price, volume, amount, pct_chg, pe_ttm, pb_mrq, ps_ttm, pcf_ttm, market_cap`

const upsertSQL = `INSERT INTO stock_info (` + columns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(code) DO UPDATE SET
	name = excluded.name,
	industry = excluded.industry,
	market = excluded.market,
	list_date = excluded.list_date,
	list_status = excluded.list_status,
	last_updated = excluded.last_updated,
	detailed_info_updated = excluded.detailed_info_updated,
	last_detailed_update = excluded.last_detailed_update,
	trade_date = excluded.trade_date,
	open_price = excluded.open_price,
	high_price = excluded.high_price,
	low_price = excluded.low_price,
	close_price = excluded.close_price,
	volume = excluded.volume,
	amount = excluded.amount,
	pct_chg = excluded.pct_chg,
	pe_ttm = excluded.pe_ttm,
	pb_mrq = excluded.pb_mrq,
	ps_ttm = excluded.ps_ttm,
	pcf_ttm = excluded.pcf_ttm,
	market_cap = excluded.market_cap`

// Mirror SQLite 镜像
type Mirror struct {
	db  *sql.DB
	log *logrus.Entry
}

// Open 打开（或创建）镜像数据库并建表
func Open(path string) (*Mirror, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, stockerr.NewPersistenceError(fmt.Sprintf("open sqlite %s", path), err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA synchronous=NORMAL")
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, stockerr.NewPersistenceError("create stock_info schema", err)
	}
	return &Mirror{db: db, log: logger.WithComponent("SQLiteMirror")}, nil
}

// Close 关闭数据库
func (m *Mirror) Close() error {
	return m.db.Close()
}

// Upsert 在一个事务内写入全部记录，按代码覆盖
func (m *Mirror) Upsert(ctx context.Context, records []model.StockRecord) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, stockerr.NewPersistenceError("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, stockerr.NewPersistenceError("prepare upsert", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, args(rec)...); err != nil {
			return 0, stockerr.NewPersistenceError(fmt.Sprintf("upsert %s", rec.Code), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, stockerr.NewPersistenceError("commit upsert", err)
	}
	m.log.WithField("count", len(records)).Info("镜像写入完成")
	return len(records), nil
}

// Export 用快照的全部记录覆盖镜像，快照里已不存在的代码一并删除
func (m *Mirror) Export(ctx context.Context, records []model.StockRecord) (int, error) {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM stock_info"); err != nil {
		return 0, stockerr.NewPersistenceError("clear stock_info", err)
	}
	return m.Upsert(ctx, records)
}

// GetStockInfo 按代码读取
func (m *Mirror) GetStockInfo(ctx context.Context, code string) (model.StockRecord, bool, error) {
	row := m.db.QueryRowContext(ctx, "SELECT "+columns+" FROM stock_info WHERE code = ?", model.NormalizeCode(code))
	rec, err := scan(row)
	if err == sql.ErrNoRows {
		return model.StockRecord{}, false, nil
	}
	if err != nil {
		return model.StockRecord{}, false, stockerr.NewPersistenceError("query stock_info", err)
	}
	return rec, true, nil
}

// GetStocksByMarketCap 市值区间筛选，nil 表示不设边界，结果按市值降序
func (m *Mirror) GetStocksByMarketCap(ctx context.Context, minCap, maxCap *float64) ([]model.StockRecord, error) {
	query := "SELECT " + columns + " FROM stock_info WHERE market_cap IS NOT NULL"
	var params []interface{}
	if minCap != nil {
		query += " AND market_cap >= ?"
		params = append(params, *minCap)
	}
	if maxCap != nil {
		query += " AND market_cap <= ?"
		params = append(params, *maxCap)
	}
	query += " ORDER BY market_cap DESC"

	rows, err := m.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, stockerr.NewPersistenceError("query market cap", err)
	}
	defer rows.Close()

	var result []model.StockRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, stockerr.NewPersistenceError("scan stock_info", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count 记录数
func (m *Mirror) Count(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_info").Scan(&n)
	return n, err
}

func args(rec model.StockRecord) []interface{} {
	return []interface{}{
		rec.Code, rec.Name, rec.Industry, string(rec.Market), rec.ListDate, string(rec.ListStatus),
		timestampText(rec.LastUpdated), rec.DetailedInfoUpdated, timestampText(rec.LastDetailedUpdate),
		rec.TradeDate, rec.OpenPrice, rec.HighPrice, rec.LowPrice, rec.ClosePrice, rec.Volume,
		rec.Amount, rec.PctChg, rec.PeTTM, rec.PbMRQ, rec.PsTTM, rec.PcfTTM, rec.MarketCap,
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(s scanner) (model.StockRecord, error) {
	var rec model.StockRecord
	var industry, market, listDate, listStatus, lastUpdated, lastDetailed, tradeDate sql.NullString
	var detailed bool
	nums := make([]sql.NullFloat64, 12)

	dest := []interface{}{&rec.Code, &rec.Name, &industry, &market, &listDate, &listStatus,
		&lastUpdated, &detailed, &lastDetailed, &tradeDate}
	for i := range nums {
		dest = append(dest, &nums[i])
	}
	if err := s.Scan(dest...); err != nil {
		return rec, err
	}

	rec.Industry = industry.String
	rec.Market = model.Market(market.String)
	rec.ListDate = listDate.String
	rec.ListStatus = model.ListingStatus(listStatus.String)
	rec.LastUpdated = parseTimestamp(lastUpdated)
	rec.DetailedInfoUpdated = detailed
	rec.LastDetailedUpdate = parseTimestamp(lastDetailed)
	rec.TradeDate = tradeDate.String

	targets := []**float64{&rec.OpenPrice, &rec.HighPrice, &rec.LowPrice, &rec.ClosePrice, &rec.Volume,
		&rec.Amount, &rec.PctChg, &rec.PeTTM, &rec.PbMRQ, &rec.PsTTM, &rec.PcfTTM, &rec.MarketCap}
	for i, target := range targets {
		if nums[i].Valid {
			*target = model.Float(nums[i].Float64)
		}
	}
	return rec, nil
}

func timestampText(ts model.Timestamp) interface{} {
	if ts.IsZero() {
		return nil
	}
	return ts.Format(time.RFC3339Nano)
}

func parseTimestamp(s sql.NullString) model.Timestamp {
	if !s.Valid || s.String == "" {
		return model.Timestamp{}
	}
	t, err := model.ParseTimestamp(s.String)
	if err != nil {
		return model.Timestamp{}
	}
	return model.NewTimestamp(t)
}

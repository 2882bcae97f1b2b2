// Package cache 实现股票信息缓存：内存中的记录表，以单个 JSON 快照文件持久化。
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/json"
	"stocksync/pkg/logger"
	"stocksync/pkg/model"
)

// DefaultDataSource 快照中记录的默认数据源标识
const DefaultDataSource = "baostock"

// Snapshot 快照文件的完整结构，每次保存整体覆盖
type Snapshot struct {
	LastUpdate model.Timestamp              `json:"last_update"`
	DataSource string                       `json:"data_source"`
	TotalCount int                          `json:"total_count"`
	Stocks     map[string]model.StockRecord `json:"stocks"`
}

// Store 股票信息缓存。并发读安全，写入约定为单次运行单写者
type Store struct {
	path       string
	dataSource string
	now        func() time.Time
	log        *logrus.Entry

	mu      sync.RWMutex
	records map[string]model.StockRecord
	order   []string // 列表顺序：加载顺序 + 新增追加
}

// Option Store 构造选项
type Option func(*Store)

// WithDataSource 设置快照中写入的数据源标识
func WithDataSource(source string) Option {
	return func(s *Store) {
		if source != "" {
			s.dataSource = source
		}
	}
}

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore 创建指向 path 的空缓存，调用 Load 后才有数据
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:       path,
		dataSource: DefaultDataSource,
		now:        time.Now,
		log:        logger.WithComponent("CacheStore"),
		records:    make(map[string]model.StockRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path 快照文件路径
func (s *Store) Path() string {
	return s.path
}

// Load 读取快照到内存。文件缺失或无法解析时缓存为空，并返回告警性质的 CacheError
func (s *Store) Load() error {
	records, order, err := s.read()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records, s.order = records, order
	if err != nil {
		return err
	}
	s.log.Infof("已加载股票信息缓存，包含 %d 只股票", len(s.records))
	return nil
}

// Reload 重新读取快照，只有读取成功才替换内存数据，失败时保留原有记录
func (s *Store) Reload() error {
	records, order, err := s.read()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records, s.order = records, order
	s.log.Debugf("已重新加载快照，包含 %d 只股票", len(records))
	return nil
}

// read 解析快照文件；出错时返回空表
func (s *Store) read() (map[string]model.StockRecord, []string, error) {
	records := make(map[string]model.StockRecord)
	var order []string

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Warnf("快照文件不存在，使用空缓存: %s", s.path)
			return records, nil, wrapCacheError(ErrCacheMiss, "snapshot file not found", s.path, err)
		}
		s.log.WithError(err).Warn("读取快照失败，使用空缓存")
		return records, nil, wrapCacheError(ErrCacheCorrupted, "read snapshot failed", s.path, err)
	}

	if !gjson.ValidBytes(data) {
		s.log.Warnf("快照文件不是合法 JSON，使用空缓存: %s", s.path)
		return records, nil, wrapCacheError(ErrCacheCorrupted, "snapshot is not valid json", s.path, nil)
	}

	var decodeErr error
	gjson.GetBytes(data, "stocks").ForEach(func(key, value gjson.Result) bool {
		var rec model.StockRecord
		if err := json.Unmarshal([]byte(value.Raw), &rec); err != nil {
			decodeErr = fmt.Errorf("decode record %s: %w", key.String(), err)
			return false
		}
		rec.Normalize(key.String())
		if _, exists := records[rec.Code]; !exists {
			order = append(order, rec.Code)
		}
		records[rec.Code] = rec
		return true
	})
	if decodeErr != nil {
		s.log.WithError(decodeErr).Warn("快照记录解析失败，使用空缓存")
		return make(map[string]model.StockRecord), nil, wrapCacheError(ErrCacheCorrupted, "snapshot record corrupted", s.path, decodeErr)
	}
	return records, order, nil
}

// Save 将全部记录与元数据写入快照：先写临时文件，再重命名覆盖
func (s *Store) Save() error {
	s.mu.RLock()
	snap := Snapshot{
		LastUpdate: model.NewTimestamp(s.now()),
		DataSource: s.dataSource,
		TotalCount: len(s.records),
		Stocks:     make(map[string]model.StockRecord, len(s.records)),
	}
	for code, rec := range s.records {
		snap.Stocks[code] = rec
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return stockerr.WrapError(stockerr.CodePersistenceFailed, "marshal snapshot failed", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return stockerr.WrapError(stockerr.CodePersistenceFailed, "create snapshot directory failed", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return stockerr.WrapError(stockerr.CodePersistenceFailed, "write snapshot failed", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return stockerr.WrapError(stockerr.CodePersistenceFailed, "rename snapshot failed", err)
	}

	s.log.Infof("已保存股票信息缓存，包含 %d 只股票", snap.TotalCount)
	return nil
}

// IsValid 只读取快照的 last_update 字段判断是否仍在有效期内，不解析任何记录
func (s *Store) IsValid(validityDays int) bool {
	last, ok := s.readLastUpdate()
	if !ok {
		return false
	}
	return s.now().Sub(last) < time.Duration(validityDays)*24*time.Hour
}

func (s *Store) readLastUpdate() (time.Time, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return time.Time{}, false
	}
	v := gjson.GetBytes(data, "last_update")
	if v.Type != gjson.String {
		return time.Time{}, false
	}
	t, err := model.ParseTimestamp(v.String())
	if err != nil {
		s.log.WithError(err).Warn("快照 last_update 无法解析")
		return time.Time{}, false
	}
	return t, true
}

// Status 缓存文件状态
type Status struct {
	LastUpdate *time.Time `json:"last_update"`
	AgeDays    *int       `json:"age_days"`
	IsValid    bool       `json:"is_valid"`
	DataSource string     `json:"data_source"`
	TotalCount int        `json:"total_count"`
}

// Status 读取快照元数据（不解析记录）
func (s *Store) Status(validityDays int) Status {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Status{}
	}

	meta := gjson.GetManyBytes(data, "last_update", "data_source", "total_count")
	st := Status{
		DataSource: meta[1].String(),
		TotalCount: int(meta[2].Int()),
	}
	if st.DataSource == "" {
		st.DataSource = "unknown"
	}
	if !meta[2].Exists() {
		st.TotalCount = s.Len()
	}

	if meta[0].Type == gjson.String {
		if t, err := model.ParseTimestamp(meta[0].String()); err == nil {
			age := int(s.now().Sub(t).Hours() / 24)
			st.LastUpdate = &t
			st.AgeDays = &age
			st.IsValid = age < validityDays
		}
	}
	return st
}

// Get 获取单只股票记录
func (s *Store) Get(code string) (model.StockRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[model.NormalizeCode(code)]
	return rec, ok
}

// Put 写入记录，新代码追加到列表末尾
func (s *Store) Put(rec model.StockRecord) {
	rec.Normalize("")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.Code]; !exists {
		s.order = append(s.order, rec.Code)
	}
	s.records[rec.Code] = rec
}

// Codes 按列表顺序返回全部代码
func (s *Store) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]string, len(s.order))
	copy(codes, s.order)
	return codes
}

// Records 按列表顺序返回全部记录的副本
func (s *Store) Records() []model.StockRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StockRecord, 0, len(s.order))
	for _, code := range s.order {
		out = append(out, s.records[code])
	}
	return out
}

// Len 记录数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

package cache

import (
	stockerr "stocksync/pkg/error"
)

// CacheError 快照读写问题。Load 返回的 CacheError 只是告警，缓存本身仍可用
type CacheError struct {
	stockerr.BaseError
	Path string `json:"path,omitempty"`
}

const (
	// ErrCacheMiss 表示快照文件不存在。
	ErrCacheMiss stockerr.ErrorCode = "CACHE_MISS"
	// ErrCacheCorrupted 表示快照文件无法解析。
	ErrCacheCorrupted stockerr.ErrorCode = "CACHE_CORRUPTED"
)

// 仅用于 errors.Is 比较的哨兵
var (
	ErrSnapshotMissing   = NewCacheError(ErrCacheMiss, "snapshot file not found")
	ErrSnapshotCorrupted = NewCacheError(ErrCacheCorrupted, "snapshot file corrupted")
)

func NewCacheError(code stockerr.ErrorCode, message string) *CacheError {
	return &CacheError{
		BaseError: *stockerr.NewError(code, message),
	}
}

// Is 按错误代码比较
func (e *CacheError) Is(target error) bool {
	if t, ok := target.(*CacheError); ok {
		return e.Code == t.Code
	}
	return e.BaseError.Is(target)
}

// Warning 表示该错误不影响继续使用缓存
func (e *CacheError) Warning() bool {
	return e.Code == ErrCacheMiss || e.Code == ErrCacheCorrupted
}

func wrapCacheError(code stockerr.ErrorCode, message, path string, cause error) *CacheError {
	e := &CacheError{
		BaseError: *stockerr.WrapError(code, message, cause),
		Path:      path,
	}
	e.WithContext("path", path)
	return e
}

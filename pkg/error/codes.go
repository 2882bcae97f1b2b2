package error

import "errors"

const (
	// CodeAuthFailed 登录或会话续期失败，致命，终止本次运行。
	CodeAuthFailed ErrorCode = "AUTH_FAILED"
	// CodeQueryFailed 数据源返回非成功错误码，可恢复。
	CodeQueryFailed ErrorCode = "QUERY_FAILED"
	// CodeEmptyResult 数据源返回成功但结果为空，按 QUERY_FAILED 同等处理。
	CodeEmptyResult ErrorCode = "EMPTY_RESULT"
	// CodePersistenceFailed 快照写入失败，记录日志后继续。
	CodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	// CodeInvalidRecord 本地记录状态异常（程序错误）。
	CodeInvalidRecord ErrorCode = "INVALID_RECORD"
)

// 用于 errors.Is 比较的哨兵错误
var (
	ErrAuthFailed        = NewError(CodeAuthFailed, "provider authentication failed")
	ErrQueryFailed       = NewError(CodeQueryFailed, "provider query failed")
	ErrEmptyResult       = NewError(CodeEmptyResult, "provider returned no rows")
	ErrPersistenceFailed = NewError(CodePersistenceFailed, "snapshot persistence failed")
	ErrInvalidRecord     = NewError(CodeInvalidRecord, "invalid cached record")
)

// NewAuthError 创建登录失败错误
func NewAuthError(provider, msg string, cause error) *BaseError {
	return WrapError(CodeAuthFailed, msg, cause).WithContext("provider", provider)
}

// NewQueryError 创建查询失败错误，providerCode 为数据源自身的错误码
func NewQueryError(query, providerCode, msg string) *BaseError {
	return NewError(CodeQueryFailed, msg).
		WithContext("query", query).
		WithContext("provider_code", providerCode)
}

// NewEmptyResultError 创建空结果错误
func NewEmptyResultError(query, target string) *BaseError {
	return Errorf(CodeEmptyResult, "%s returned no rows for %s", query, target).
		WithContext("query", query)
}

// NewPersistenceError 创建持久化失败错误
func NewPersistenceError(msg string, cause error) *BaseError {
	return WrapError(CodePersistenceFailed, msg, cause)
}

// IsRecoverable 判断错误是否属于可恢复的单条查询错误
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrQueryFailed) || errors.Is(err, ErrEmptyResult)
}

// IsFatal 判断错误是否会终止整个批次
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

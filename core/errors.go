package core

import "errors"

// DomainError 是领域层的统一错误类型：模块 + 错误码 + 消息。
// 各模块的哨兵错误（ErrStoreNotFound 等）都是它的实例，
// 用 errors.Is/As 或下方的检查函数判断。
type DomainError struct {
	Module  string // store / algo / profile / engine
	Code    string // NOT_FOUND / NOT_SUPPORTED / UNAVAILABLE ...
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError 创建领域错误。
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{Module: module, Code: code, Message: message}
}

// 错误码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeNotSupported  = "NOT_SUPPORTED"
	ErrorCodeUnavailable   = "UNAVAILABLE"
	ErrorCodeInvalidInput  = "INVALID_INPUT"
	ErrorCodeInternalError = "INTERNAL_ERROR"
)

// 模块名称常量
const (
	ModuleStore   = "store"
	ModuleAlgo    = "algo"
	ModuleProfile = "profile"
	ModuleEngine  = "engine"
)

// 哨兵错误
var (
	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreNotSupported 表示存储后端不支持该操作
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")

	// ErrProfileNotFound 表示用户没有画像（没有任何行为的用户不产生画像）
	ErrProfileNotFound = NewDomainError(ModuleProfile, ErrorCodeNotFound, "profile: not found")
)

// AsDomainError 提取 DomainError，不是则返回 nil。
func AsDomainError(err error) *DomainError {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// IsNotFound 检查错误是否为 NOT_FOUND（任意模块）。
func IsNotFound(err error) bool {
	if de := AsDomainError(err); de != nil {
		return de.Code == ErrorCodeNotFound
	}
	return false
}

// IsUnavailable 检查错误是否为 UNAVAILABLE。
func IsUnavailable(err error) bool {
	if de := AsDomainError(err); de != nil {
		return de.Code == ErrorCodeUnavailable
	}
	return false
}

// IsStoreNotFound 检查错误是否为存储层 key 不存在。
func IsStoreNotFound(err error) bool {
	if de := AsDomainError(err); de != nil {
		return de.Module == ModuleStore && de.Code == ErrorCodeNotFound
	}
	return false
}

// IsProfileNotFound 检查错误是否为画像缺失。
func IsProfileNotFound(err error) bool {
	if de := AsDomainError(err); de != nil {
		return de.Module == ModuleProfile && de.Code == ErrorCodeNotFound
	}
	return false
}

package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType 错误类型
type ErrorType string

const (
	ErrTypeValidation     ErrorType = "VALIDATION"
	ErrTypeNotFound       ErrorType = "NOT_FOUND"
	ErrTypeParsing        ErrorType = "PARSING"
	ErrTypeForecastEngine ErrorType = "FORECAST_ENGINE"
	ErrTypeStorage        ErrorType = "STORAGE"
	ErrTypeConfig         ErrorType = "CONFIG"
)

// AppError 带类型和上下文的应用错误
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error 实现 error 接口, 上下文按键名排序输出
func (e *AppError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Type, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, " "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap 支持 errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext 添加上下文 (产品/月份/年份/日期等)
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New 创建应用错误
func New(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewValidationError 参数类型或取值不合法
func NewValidationError(message string, cause error) *AppError {
	return New(ErrTypeValidation, message, cause)
}

// NewNotFoundError 找不到源文件
func NewNotFoundError(message string, cause error) *AppError {
	return New(ErrTypeNotFound, message, cause)
}

// NewParseError 日期或价格无法解析
func NewParseError(message string, cause error) *AppError {
	return New(ErrTypeParsing, message, cause)
}

// NewForecastEngineError 预测引擎拒绝输入或内部失败
func NewForecastEngineError(message string, cause error) *AppError {
	return New(ErrTypeForecastEngine, message, cause)
}

// NewStorageError 持久化失败
func NewStorageError(message string, cause error) *AppError {
	return New(ErrTypeStorage, message, cause)
}

// NewConfigError 配置文件错误
func NewConfigError(message string, cause error) *AppError {
	return New(ErrTypeConfig, message, cause)
}

// TypeOf 返回错误链中第一个 AppError 的类型
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// IsType 判断错误链中是否有指定类型的 AppError
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 错误代码常量
const (
	// 系统级错误 (1000-1999)
	ErrCodeSystem             ErrorCode = "SETTLE_1000"
	ErrCodeRedisConnection    ErrorCode = "SETTLE_1001"
	ErrCodeConfigInvalid      ErrorCode = "SETTLE_1004"
	ErrCodeServiceUnavailable ErrorCode = "SETTLE_1005"
	ErrCodeStoreUnavailable   ErrorCode = "SETTLE_1006"

	// 业务级错误 (2000-2999)
	ErrCodeInvalidParameters    ErrorCode = "SETTLE_2000"
	ErrCodeInvalidDateRange     ErrorCode = "SETTLE_2001"
	ErrCodeInvalidLockTimeout   ErrorCode = "SETTLE_2010"
	ErrCodeInvalidRetryAttempts ErrorCode = "SETTLE_2011"
	ErrCodeInvalidRetryInterval ErrorCode = "SETTLE_2012"
	ErrCodeBatchInterrupted     ErrorCode = "SETTLE_2013"
	ErrCodeInvalidLockTTL       ErrorCode = "SETTLE_2015"

	// 锁相关错误 (3000-3999)
	ErrCodeLockAcquisitionFailed ErrorCode = "SETTLE_3000"
	ErrCodeLockTimeout           ErrorCode = "SETTLE_3001"
	ErrCodeLockReleaseFailure    ErrorCode = "SETTLE_3002"
	ErrCodeBatchInProgress       ErrorCode = "SETTLE_3003"

	// 限流相关错误 (5000-5999)
	ErrCodeCircuitBreakerOpen ErrorCode = "SETTLE_5002"

	// 报告相关错误 (6000-6999)
	ErrCodeReportNotFound        ErrorCode = "SETTLE_6000"
	ErrCodeReportSaveFailure     ErrorCode = "SETTLE_6001"
	ErrCodeReportLoadFailure     ErrorCode = "SETTLE_6002"
	ErrCodeSerializationFailed   ErrorCode = "SETTLE_6004"
	ErrCodeDeserializationFailed ErrorCode = "SETTLE_6005"
)

// ErrorSeverity 错误严重程度
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
)

// SettlementError 结构化错误类型
type SettlementError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	Severity   ErrorSeverity  `json:"severity"`
	Timestamp  time.Time      `json:"timestamp"`
	Operation  string         `json:"operation,omitempty"`
	StackTrace string         `json:"stack_trace,omitempty"`
	Cause      error          `json:"-"`
	Retryable  bool           `json:"retryable"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Error 实现 error 接口
func (e *SettlementError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap 实现 errors.Unwrap 接口
func (e *SettlementError) Unwrap() error { return e.Cause }

// Is 按错误代码比较
func (e *SettlementError) Is(target error) bool {
	if t, ok := target.(*SettlementError); ok {
		return e.Code == t.Code
	}
	return false
}

// clone 返回副本, 预定义错误不会被修改
func (e *SettlementError) clone() *SettlementError {
	c := *e
	c.Timestamp = time.Now()
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// WithCause 添加原因错误
func (e *SettlementError) WithCause(cause error) *SettlementError {
	c := e.clone()
	c.Cause = cause
	if cause != nil && !c.Retryable {
		c.Retryable = IsRetryableError(cause)
	}
	return c
}

// WithDetails 添加详细信息
func (e *SettlementError) WithDetails(details string) *SettlementError {
	c := e.clone()
	c.Details = details
	return c
}

// WithOperation 添加操作信息
func (e *SettlementError) WithOperation(operation string) *SettlementError {
	c := e.clone()
	c.Operation = operation
	return c
}

// WithMetadata 添加元数据
func (e *SettlementError) WithMetadata(key string, value any) *SettlementError {
	c := e.clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
	return c
}

// WithStackTrace 添加堆栈跟踪
func (e *SettlementError) WithStackTrace() *SettlementError {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	e.StackTrace = string(buf[:n])
	return e
}

// NewError 创建新的错误
func NewError(code ErrorCode, message string) *SettlementError {
	return &SettlementError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
	}
}

// NewRetryableError 创建可重试的错误
func NewRetryableError(code ErrorCode, message string) *SettlementError {
	err := NewError(code, message)
	err.Retryable = true
	return err
}

// NewCriticalError 创建严重错误
func NewCriticalError(code ErrorCode, message string) *SettlementError {
	err := NewError(code, message)
	err.Severity = SeverityCritical
	return err.WithStackTrace()
}

// 预定义的错误实例
var (
	ErrSystemError        = NewCriticalError(ErrCodeSystem, "system error occurred")
	ErrRedisConnection    = NewRetryableError(ErrCodeRedisConnection, "Redis connection failed")
	ErrConfigInvalid      = NewCriticalError(ErrCodeConfigInvalid, "configuration is invalid")
	ErrServiceUnavailable = NewRetryableError(ErrCodeServiceUnavailable, "service temporarily unavailable")
	ErrStoreUnavailable   = NewError(ErrCodeStoreUnavailable, "persistence store failure, batch rolled back")

	ErrInvalidParameters    = NewError(ErrCodeInvalidParameters, "invalid parameters provided")
	ErrInvalidLockTimeout   = NewError(ErrCodeInvalidLockTimeout, "invalid lock timeout: must be between 1s and 5m")
	ErrInvalidRetryAttempts = NewError(ErrCodeInvalidRetryAttempts, "invalid retry attempts: must be between 0 and 10")
	ErrInvalidRetryInterval = NewError(ErrCodeInvalidRetryInterval, "invalid retry interval: cannot be negative")
	ErrInvalidLockTTL       = NewError(ErrCodeInvalidLockTTL, "invalid lock expiration: must be between 10s and 1h")
	ErrBatchInterrupted     = NewError(ErrCodeBatchInterrupted, "batch interrupted, nothing committed")
	ErrDateRange            = NewError(ErrCodeInvalidDateRange, "invalid date range")

	ErrLockAcquisitionFailed = NewRetryableError(ErrCodeLockAcquisitionFailed, "failed to acquire batch lock")
	ErrLockTimeout           = NewRetryableError(ErrCodeLockTimeout, "batch lock acquisition timeout")
	ErrLockReleaseFailure    = NewError(ErrCodeLockReleaseFailure, "failed to release batch lock")
	ErrBatchInProgress       = NewRetryableError(ErrCodeBatchInProgress, "another batch holds this draw/date")

	ErrCircuitBreakerOpen = NewRetryableError(ErrCodeCircuitBreakerOpen, "circuit breaker is open")

	ErrReportNotFound        = NewError(ErrCodeReportNotFound, "report not found")
	ErrReportSaveFailure     = NewRetryableError(ErrCodeReportSaveFailure, "failed to save report")
	ErrReportLoadFailure     = NewRetryableError(ErrCodeReportLoadFailure, "failed to load report")
	ErrSerializationFailed   = NewError(ErrCodeSerializationFailed, "serialization failed")
	ErrDeserializationFailed = NewError(ErrCodeDeserializationFailed, "deserialization failed")
)

// ErrorHandler 错误处理器接口
type ErrorHandler interface {
	HandleError(ctx context.Context, err error) error
	ShouldRetry(err error) bool
	GetRetryDelay(attempt int, err error) time.Duration
}

// DefaultErrorHandler 默认错误处理器
type DefaultErrorHandler struct {
	logger        Logger
	baseDelay     time.Duration
	maxDelay      time.Duration
	backoffFactor float64
}

// NewDefaultErrorHandler 创建默认错误处理器
func NewDefaultErrorHandler(logger Logger, baseDelay time.Duration) *DefaultErrorHandler {
	if baseDelay <= 0 {
		baseDelay = DefaultRetryInterval
	}
	return &DefaultErrorHandler{
		logger:        logger,
		baseDelay:     baseDelay,
		maxDelay:      30 * time.Second,
		backoffFactor: 2.0,
	}
}

// HandleError 转换为 SettlementError 并记录
func (h *DefaultErrorHandler) HandleError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var settleErr *SettlementError
	if !errors.As(err, &settleErr) {
		settleErr = ErrSystemError.WithCause(err)
	}

	switch settleErr.Severity {
	case SeverityCritical, SeverityHigh:
		h.logger.Error("%s error: %s", settleErr.Severity, settleErr.Error())
	case SeverityLow:
		h.logger.Info("low severity error: %s", settleErr.Error())
	default:
		h.logger.Warn("%s", settleErr.Error())
	}

	return settleErr
}

// ShouldRetry 判断是否应该重试
func (h *DefaultErrorHandler) ShouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var settleErr *SettlementError
	if errors.As(err, &settleErr) {
		return settleErr.Retryable
	}
	return IsRetryableError(err)
}

// GetRetryDelay 指数退避加 ±25% 抖动
func (h *DefaultErrorHandler) GetRetryDelay(attempt int, err error) time.Duration {
	if attempt <= 0 {
		return h.baseDelay
	}

	delay := time.Duration(float64(h.baseDelay) * math.Pow(h.backoffFactor, float64(attempt-1)))
	jitter := time.Duration(float64(delay) * 0.25 * (2*rand.Float64() - 1))
	delay += jitter

	if delay > h.maxDelay {
		delay = h.maxDelay
	}
	return delay
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"network is unreachable",
	"temporary failure",
	"server closed",
	"broken pipe",
	"i/o timeout",
	"dial tcp",
	"connection timed out",
	"no route to host",
	"could not serialize access",
	"deadlock detected",
	"redis: connection pool timeout",
}

// IsRetryableError 检查是否为可重试错误
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// ErrorRecovery 错误恢复策略
type ErrorRecovery struct {
	handler    ErrorHandler
	maxRetries int
	logger     Logger
}

// NewErrorRecovery 创建错误恢复策略
func NewErrorRecovery(handler ErrorHandler, maxRetries int, logger Logger) *ErrorRecovery {
	return &ErrorRecovery{
		handler:    handler,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// ExecuteWithRetry 执行带重试的操作, 非可重试错误原样返回
func (r *ErrorRecovery) ExecuteWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return ErrBatchInterrupted.WithCause(err)
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("operation succeeded after %d retries", attempt)
			}
			return nil
		}

		lastErr = r.handler.HandleError(ctx, err)
		if !r.handler.ShouldRetry(lastErr) {
			return lastErr
		}

		if attempt < r.maxRetries {
			delay := r.handler.GetRetryDelay(attempt+1, lastErr)
			r.logger.Debug("retrying operation in %v (attempt %d/%d)", delay, attempt+1, r.maxRetries)

			select {
			case <-ctx.Done():
				return ErrBatchInterrupted.WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return lastErr
}

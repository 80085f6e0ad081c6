package bus

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/goburrow/serial"
)

// ErrorType 线路错误类型
type ErrorType int

const (
	ErrorTypeConnection  ErrorType = iota // 串口断开或不可用（需要重新打开）
	ErrorTypeTimeout                      // 读写超时（等同于线路空闲）
	ErrorTypeConfigError                  // 配置错误（端口名、波特率等）
	ErrorTypeUnknown                      // 未知错误
)

// LineError 线路错误封装
type LineError struct {
	Type        ErrorType
	Message     string
	OriginalErr error
}

func (e *LineError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
	}
	return e.Message
}

func (e *LineError) Unwrap() error { return e.OriginalErr }

// IsRetryable 超时可以在下一个周期继续，其他错误需要重新打开通道
func (e *LineError) IsRetryable() bool {
	return e.Type == ErrorTypeTimeout
}

// ShouldReopen 是否需要重新打开通道
func (e *LineError) ShouldReopen() bool {
	return e.Type == ErrorTypeConnection
}

func NewLineError(errType ErrorType, message string, originalErr error) *LineError {
	return &LineError{Type: errType, Message: message, OriginalErr: originalErr}
}

// ClassifyError 分类错误
func ClassifyError(err error) *LineError {
	if err == nil {
		return nil
	}
	var lineErr *LineError
	if errors.As(err, &lineErr) {
		return lineErr
	}
	if IsTimeout(err) {
		return NewLineError(ErrorTypeTimeout, "read timeout", err)
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return NewLineError(ErrorTypeConfigError, "serial port unavailable", err)
	}
	if errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return NewLineError(ErrorTypeConnection, "channel closed", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewLineError(ErrorTypeConnection, "network serial bridge error", err)
	}
	errStr := err.Error()
	if strings.Contains(errStr, "baud") || strings.Contains(errStr, "parity") || strings.Contains(errStr, "stop bits") {
		return NewLineError(ErrorTypeConfigError, errStr, err)
	}
	return NewLineError(ErrorTypeUnknown, errStr, err)
}

// IsTimeout 判断是否为读超时，包括 goburrow/serial 的 ErrTimeout
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, serial.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// ErrorTypeName 错误类型名称
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeConnection:
		return "connection_error"
	case ErrorTypeTimeout:
		return "timeout_error"
	case ErrorTypeConfigError:
		return "config_error"
	default:
		return "unknown_error"
	}
}

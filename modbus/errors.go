package modbus

import (
	"errors"
	"fmt"

	globaldata "github.com/r19g75/modbus-bus-diag/global_data"
)

var (
	ErrShortFrame          = errors.New("frame too short")
	ErrCRC                 = errors.New("crc mismatch")
	ErrEchoMismatch        = errors.New("response does not echo request")
	ErrUnsupportedFunction = errors.New("not supported function code")
)

// ExceptionError 从站返回的异常响应
type ExceptionError struct {
	FunctionCode byte
	Code         byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("function Code(0x%02x) exception Code(0x%02x): %s", e.FunctionCode, e.Code, globaldata.GetModbusErrorDesc(e.Code))
}

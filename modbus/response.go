package modbus

import "fmt"

// IsValidFunctionCode 是否为常见的功能码，异常响应（最高位为1）也视为有效
func IsValidFunctionCode(code byte) bool {
	if code&0x80 != 0 {
		return true
	}
	switch code {
	case 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x0F, 0x10:
		return true
	}
	return false
}

// ResponseLength 根据响应头计算完整响应长度（含CRC），header 至少3字节
func ResponseLength(header []byte) (int, error) {
	if len(header) < 3 {
		return 0, ErrShortFrame
	}
	if !IsValidFunctionCode(header[1]) {
		return 0, fmt.Errorf("%w: %02X", ErrUnsupportedFunction, header[1])
	}
	if header[1]&0x80 != 0 {
		return 5, nil // 异常响应固定5字节
	}
	switch header[1] {
	case 0x01, 0x02, 0x03, 0x04:
		return int(header[2]) + 5, nil
	default:
		return 8, nil
	}
}

// ResponseComplete 缓冲区中的数据是否已构成完整响应
func ResponseComplete(data []byte) bool {
	n, err := ResponseLength(data)
	return err == nil && len(data) >= n
}

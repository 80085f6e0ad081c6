package modbus

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC16 Modbus RTU 校验：初值 0xFFFF，多项式 0xA001（反射）
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// AppendCRC 在帧尾追加 CRC，低字节在前
func AppendCRC(frame []byte) []byte {
	return binary.LittleEndian.AppendUint16(frame, CRC16(frame))
}

// CheckCRC 校验帧尾两字节（低字节在前）与前面数据的 CRC 是否一致，长度小于 3 视为无效
func CheckCRC(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	n := len(frame) - 2
	return binary.LittleEndian.Uint16(frame[n:]) == CRC16(frame[:n])
}

// ParseExceptionResponse 解析RTU异常响应
// RTU格式: [地址, 功能码|0x80, 异常码, CRC1, CRC2]
// 返回 (isException, exceptionCode, functionCode)
func ParseExceptionResponse(data []byte) (bool, byte, byte) {
	if len(data) < 3 {
		return false, 0, 0
	}
	functionCode := data[1]
	if functionCode&0x80 != 0 {
		return true, data[2], functionCode & 0x7F
	}
	return false, 0, 0
}

package modbus

import (
	"encoding/binary"
	"fmt"
)

// QueryLength 固定形状的读请求长度 [addr][fn][start hi/lo][count hi/lo][crc lo/hi]
const QueryLength = 8

// Query 主站读请求
type Query struct {
	Address  byte
	Function byte
	Start    uint16
	Count    uint16
}

func (q Query) String() string {
	return fmt.Sprintf("addr=0x%02X fn=0x%02X start=%d count=%d", q.Address, q.Function, q.Start, q.Count)
}

// ValidFrame 帧长至少 3 且 CRC 匹配
func ValidFrame(frame []byte) bool {
	return CheckCRC(frame)
}

// DecodeQuery 从帧头解析地址、功能码、起始地址和数量，不校验 CRC
func DecodeQuery(frame []byte) (Query, error) {
	if len(frame) < 6 {
		return Query{}, ErrShortFrame
	}
	return Query{
		Address:  frame[0],
		Function: frame[1],
		Start:    binary.BigEndian.Uint16(frame[2:4]),
		Count:    binary.BigEndian.Uint16(frame[4:6]),
	}, nil
}

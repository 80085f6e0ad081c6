package modbus

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// 读功能码
const (
	FuncReadCoils            byte = 0x01
	FuncReadDiscreteInputs   byte = 0x02
	FuncReadHoldingRegisters byte = 0x03
	FuncReadInputRegisters   byte = 0x04
)

// 从站地址范围
const (
	AddressMin byte = 1
	AddressMax byte = 247
)

type MasterCommand struct {
	SlaveAddress    byte   // 从站地址
	FunctionCode    byte   // 功能码
	StartingAddress uint16 // 起始地址
	Quantity        uint16 // 寄存器数量
}

func NewCommand(slaveAddress byte, functionCode byte, startingAddress uint16, quantity uint16) MasterCommand {
	return MasterCommand{
		SlaveAddress:    slaveAddress,
		FunctionCode:    functionCode,
		StartingAddress: startingAddress,
		Quantity:        quantity,
	}
}

// Serialize 序列化为 PDU 前加地址，不含 CRC。只支持读请求
func (c *MasterCommand) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(c.SlaveAddress)
	switch c.FunctionCode {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		buf.WriteByte(c.FunctionCode)
		_ = binary.Write(&buf, binary.BigEndian, c.StartingAddress)
		_ = binary.Write(&buf, binary.BigEndian, c.Quantity)
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedFunction, c.FunctionCode)
	}
	return buf.Bytes(), nil
}

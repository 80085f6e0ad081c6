package modbus

import (
	"encoding/binary"
	"fmt"

	"github.com/gogf/gf/encoding/gbinary"
)

type RTUCommand struct {
	MasterCommand        // 嵌入Command结构
	CRC           uint16 // CRC校验值
	Data          []byte // 序列化后的完整帧
}

func NewRTUCommand(slaveAddress byte, functionCode byte, startingAddress uint16, quantity uint16) RTUCommand {
	return RTUCommand{
		MasterCommand: NewCommand(slaveAddress, functionCode, startingAddress, quantity),
	}
}

// NewReadHoldingRegisters 读保持寄存器请求
func NewReadHoldingRegisters(slaveAddress byte, start uint16, quantity uint16) RTUCommand {
	return NewRTUCommand(slaveAddress, FuncReadHoldingRegisters, start, quantity)
}

// Serialize 序列化RTUCommand，CRC追加在末尾并赋值给 Data
func (r *RTUCommand) Serialize() ([]byte, error) {
	data, err := r.MasterCommand.Serialize()
	if err != nil {
		return nil, err
	}
	r.CRC = CRC16(data)
	r.Data = binary.LittleEndian.AppendUint16(data, r.CRC)
	return r.Data, nil
}

// EchoMatches 响应的前两个字节是否回显了地址和功能码，不校验 CRC
func (r *RTUCommand) EchoMatches(resp []byte) bool {
	return len(resp) >= 2 && resp[0] == r.SlaveAddress && resp[1] == r.FunctionCode
}

// ExpectedLength 正常响应的完整长度
func (r *RTUCommand) ExpectedLength() int {
	switch r.FunctionCode {
	case FuncReadCoils, FuncReadDiscreteInputs:
		return 5 + int((r.Quantity+7)/8)
	default:
		return 5 + 2*int(r.Quantity)
	}
}

// ParseAndValidateResponse 校验响应（长度、回显、CRC）并去除CRC
func (r *RTUCommand) ParseAndValidateResponse(resp []byte) ([]byte, error) {
	if len(resp) < 5 {
		return nil, ErrShortFrame
	}
	if isException, code, fn := ParseExceptionResponse(resp); isException && fn == r.FunctionCode {
		if !CheckCRC(resp[:5]) {
			return nil, ErrCRC
		}
		return nil, &ExceptionError{FunctionCode: fn, Code: code}
	}
	if !r.EchoMatches(resp) {
		return nil, fmt.Errorf("%w: got %02X %02X", ErrEchoMismatch, resp[0], resp[1])
	}
	if len(resp) < r.ExpectedLength() {
		return nil, fmt.Errorf("%w: expected %d but got %d", ErrShortFrame, r.ExpectedLength(), len(resp))
	}
	resp = resp[:r.ExpectedLength()]
	if !CheckCRC(resp) {
		return nil, ErrCRC
	}
	return resp[:len(resp)-2], nil
}

// DecodeRegisters 从响应中按大端解码 quantity 个寄存器值，不校验 CRC。
// 数据不足时返回 false
func (r *RTUCommand) DecodeRegisters(resp []byte) ([]uint16, bool) {
	need := 3 + 2*int(r.Quantity)
	if !r.EchoMatches(resp) || len(resp) < need {
		return nil, false
	}
	values := make([]uint16, r.Quantity)
	for i := range values {
		values[i] = gbinary.BeDecodeToUint16(resp[3+2*i : 5+2*i])
	}
	return values, true
}

package services

import (
	"errors"
	"time"

	gomodbus "github.com/goburrow/modbus"
	"github.com/sirupsen/logrus"

	"github.com/r19g75/modbus-bus-diag/bus"
	"github.com/r19g75/modbus-bus-diag/modbus"
	"github.com/r19g75/modbus-bus-diag/scanner"
)

// verifyAttempts 超时的复核最多尝试的次数
const verifyAttempts = 2

// Verifier 复核扫描发现的设备
type Verifier interface {
	Verify(devices []scanner.DeviceRecord) []VerifyResult
}

// ModbusVerifier 用 goburrow/modbus 的 RTU 客户端重新读取一个寄存器，
// 该客户端会校验响应 CRC，可以识别只回显了地址和功能码的误报
type ModbusVerifier struct {
	Port     string
	DataBits int
	Parity   string
	StopBits int
	Timeout  time.Duration
	Log      logrus.FieldLogger

	read func(d scanner.DeviceRecord) error
}

func (v *ModbusVerifier) Verify(devices []scanner.DeviceRecord) []VerifyResult {
	log := v.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	read := v.read
	if read == nil {
		read = v.readOne
	}
	results := make([]VerifyResult, 0, len(devices))
	for _, d := range devices {
		res := VerifyResult{Device: d}
		var err error
		for attempt := 1; attempt <= verifyAttempts; attempt++ {
			if err = verifyError(read(d)); err == nil {
				break
			}
			if lineErr := bus.ClassifyError(err); !lineErr.IsRetryable() {
				break
			}
		}
		if err != nil {
			res.Error = err.Error()
			log.WithFields(logrus.Fields{"address": d.Address, "baud": d.BaudRate}).WithError(err).Debug("复核读取失败")
		} else {
			res.Verified = true
		}
		results = append(results, res)
	}
	return results
}

func (v *ModbusVerifier) readOne(d scanner.DeviceRecord) error {
	handler := gomodbus.NewRTUClientHandler(v.Port)
	handler.BaudRate = d.BaudRate
	handler.DataBits = v.DataBits
	handler.Parity = v.Parity
	handler.StopBits = v.StopBits
	handler.SlaveId = d.Address
	handler.Timeout = v.Timeout
	if err := handler.Connect(); err != nil {
		return err
	}
	defer handler.Close()
	_, err := gomodbus.NewClient(handler).ReadHoldingRegisters(0, 1)
	return err
}

// verifyError 把 goburrow 的异常响应转换为带说明的 ExceptionError
func verifyError(err error) error {
	var mbErr *gomodbus.ModbusError
	if errors.As(err, &mbErr) {
		return &modbus.ExceptionError{FunctionCode: mbErr.FunctionCode & 0x7F, Code: mbErr.ExceptionCode}
	}
	return err
}

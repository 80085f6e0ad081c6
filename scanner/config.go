package scanner

import (
	"time"

	"github.com/r19g75/modbus-bus-diag/bus"
	"github.com/r19g75/modbus-bus-diag/modbus"
)

// Config 主动扫描参数，零值字段使用默认值
type Config struct {
	BaudRates       []int
	BaudSettle      time.Duration
	FirstAddress    int
	LastAddress     int
	MaxDevices      int
	BufferSize      int
	MinResponse     int           // 判定设备存在的最小响应长度
	TxSettle        time.Duration // 切换到发送方向后的等待
	RxSettle        time.Duration // 切换回接收方向后的等待
	ProbeTimeout    time.Duration
	ReadTurnaround  time.Duration // 读寄存器请求发出后切换回接收的等待
	ReadTimeout     time.Duration
	SampleStart     uint16
	SampleRegisters uint16
	PollInterval    time.Duration // 没有数据时两次读取之间的间隔
}

func DefaultConfig() Config {
	return Config{
		BaudRates:       bus.DefaultBaudRates,
		BaudSettle:      bus.DefaultBaudSettle,
		FirstAddress:    int(modbus.AddressMin),
		LastAddress:     int(modbus.AddressMax),
		MaxDevices:      10,
		BufferSize:      modbus.DefaultFrameBufferSize,
		MinResponse:     5,
		TxSettle:        time.Millisecond,
		RxSettle:        20 * time.Millisecond,
		ProbeTimeout:    100 * time.Millisecond,
		ReadTurnaround:  100 * time.Millisecond,
		ReadTimeout:     200 * time.Millisecond,
		SampleStart:     0,
		SampleRegisters: 10,
		PollInterval:    time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.BaudRates) == 0 {
		c.BaudRates = d.BaudRates
	}
	if c.BaudSettle <= 0 {
		c.BaudSettle = d.BaudSettle
	}
	if c.FirstAddress < int(modbus.AddressMin) || c.FirstAddress > int(modbus.AddressMax) {
		c.FirstAddress = d.FirstAddress
	}
	if c.LastAddress < c.FirstAddress || c.LastAddress > int(modbus.AddressMax) {
		c.LastAddress = d.LastAddress
	}
	if c.MaxDevices <= 0 {
		c.MaxDevices = d.MaxDevices
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.MinResponse <= 0 {
		c.MinResponse = d.MinResponse
	}
	if c.TxSettle <= 0 {
		c.TxSettle = d.TxSettle
	}
	if c.RxSettle <= 0 {
		c.RxSettle = d.RxSettle
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.ReadTurnaround < 0 {
		c.ReadTurnaround = 0
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.SampleRegisters == 0 {
		c.SampleRegisters = d.SampleRegisters
	}
	// 完整的读寄存器响应必须放得下
	if need := 5 + 2*int(c.SampleRegisters); c.BufferSize < need {
		c.BufferSize = need
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

package analyzer

import (
	"time"

	"github.com/r19g75/modbus-bus-diag/bus"
	"github.com/r19g75/modbus-bus-diag/modbus"
)

// Config 被动分析参数，零值字段使用默认值
type Config struct {
	BaudRates          []int
	BaudSettle         time.Duration
	MinFrame           int           // 触发校验的最小帧长
	BufferSize         int           // 帧缓冲区容量
	MaxAddresses       int           // 记录的从站地址上限
	MaxFunctions       int           // 记录的功能码上限
	CollisionThreshold time.Duration // 与上一有效帧的间隔小于该值视为冲突
	SilenceTimeout     time.Duration // 线路静默超过该值切换波特率
}

func DefaultConfig() Config {
	return Config{
		BaudRates:          bus.DefaultBaudRates,
		BaudSettle:         bus.DefaultBaudSettle,
		MinFrame:           modbus.QueryLength,
		BufferSize:         modbus.DefaultFrameBufferSize,
		MaxAddresses:       10,
		MaxFunctions:       5,
		CollisionThreshold: 5 * time.Millisecond,
		SilenceTimeout:     time.Second,
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
	if c.MinFrame < 3 {
		c.MinFrame = d.MinFrame
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.BufferSize < c.MinFrame {
		c.BufferSize = c.MinFrame
	}
	if c.MaxAddresses <= 0 {
		c.MaxAddresses = d.MaxAddresses
	}
	if c.MaxFunctions <= 0 {
		c.MaxFunctions = d.MaxFunctions
	}
	if c.CollisionThreshold <= 0 {
		c.CollisionThreshold = d.CollisionThreshold
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = d.SilenceTimeout
	}
	return c
}

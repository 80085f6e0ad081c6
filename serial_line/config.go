package serialline

import (
	"fmt"
	"time"

	"github.com/r19g75/modbus-bus-diag/bus"
)

// 驱动名称
const (
	DriverGoburrow = "goburrow"
	DriverBugst    = "bugst"
	DriverTarm     = "tarm"
	DriverMemory   = "memory"
)

// 方向控制方式
const (
	DirectionNone = "none" // 自动收发的 RS-485 适配器
	DirectionRTS  = "rts"  // 用 RTS 控制 DE/RE
)

// Config 串口参数，波特率由 Open 指定
type Config struct {
	Driver            string
	Port              string
	DataBits          int
	Parity            string // N, E, O
	StopBits          int
	ReadTimeout       time.Duration
	Direction         string
	RTSHighOnTransmit bool
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverGoburrow
	}
	if c.DataBits <= 0 {
		c.DataBits = 8
	}
	if c.Parity == "" {
		c.Parity = "N"
	}
	if c.StopBits <= 0 {
		c.StopBits = 1
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Millisecond
	}
	if c.Direction == "" {
		c.Direction = DirectionNone
	}
	return c
}

// Line 打开后的通道和方向引脚
type Line struct {
	Channel bus.Channel
	Pin     bus.DirectionPin
}

// New 按驱动名称创建通道，responder 只在 memory 驱动下使用
func New(cfg Config, clock bus.Clock, responder Responder) (Line, error) {
	cfg = cfg.withDefaults()
	switch cfg.Driver {
	case DriverGoburrow:
		if cfg.Direction == DirectionRTS {
			return Line{}, bus.NewLineError(bus.ErrorTypeConfigError, "goburrow driver has no RTS control, use bugst", nil)
		}
		return Line{Channel: NewGoburrowPort(cfg, clock), Pin: bus.NopPin{}}, nil
	case DriverBugst:
		p := NewBugstPort(cfg)
		var pin bus.DirectionPin = bus.NopPin{}
		if cfg.Direction == DirectionRTS {
			pin = p.RTSPin(cfg.RTSHighOnTransmit)
		}
		return Line{Channel: p, Pin: pin}, nil
	case DriverTarm:
		if cfg.Direction == DirectionRTS {
			return Line{}, bus.NewLineError(bus.ErrorTypeConfigError, "tarm driver has no RTS control, use bugst", nil)
		}
		return Line{Channel: NewTarmPort(cfg, clock), Pin: bus.NopPin{}}, nil
	case DriverMemory:
		m := NewMemoryLine(responder)
		return Line{Channel: m, Pin: m.Pin()}, nil
	default:
		return Line{}, bus.NewLineError(bus.ErrorTypeConfigError, fmt.Sprintf("unknown serial driver %q", cfg.Driver), nil)
	}
}

// lineTime 在给定波特率下发送 n 个字节所需的时间，每字符按 10 位计算
func lineTime(n, baud int) time.Duration {
	if baud <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(n) * 10 * time.Second / time.Duration(baud)
}

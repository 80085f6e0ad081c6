package serialline

import (
	"go.bug.st/serial"

	"github.com/r19g75/modbus-bus-diag/bus"
)

// BugstPort 基于 go.bug.st/serial 的通道，支持 tcdrain、清空输入缓冲和 RTS 方向控制
type BugstPort struct {
	cfg  Config
	port serial.Port
}

func NewBugstPort(cfg Config) *BugstPort {
	return &BugstPort{cfg: cfg.withDefaults()}
}

func (b *BugstPort) Open(baud int) error {
	if b.port != nil {
		return nil
	}
	port, err := serial.Open(b.cfg.Port, b.mode(baud))
	if err != nil {
		return bus.ClassifyError(err)
	}
	if err := port.SetReadTimeout(b.cfg.ReadTimeout); err != nil {
		port.Close()
		return bus.ClassifyError(err)
	}
	b.port = port
	return nil
}

// mode 使用 RTS 控制方向时，打开端口时 RTS 就处于接收电平，
// 否则驱动默认同时拉高 DTR 和 RTS
func (b *BugstPort) mode(baud int) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: b.cfg.DataBits,
		Parity:   bugstParity(b.cfg.Parity),
		StopBits: serial.OneStopBit,
	}
	if b.cfg.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	if b.cfg.Direction == DirectionRTS {
		mode.InitialStatusBits = &serial.ModemOutputBits{RTS: !b.cfg.RTSHighOnTransmit, DTR: true}
	}
	return mode
}

func (b *BugstPort) Close() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

// Read 读超时时返回 0, nil
func (b *BugstPort) Read(p []byte) (int, error) {
	if b.port == nil {
		return 0, ErrNotOpen
	}
	return b.port.Read(p)
}

func (b *BugstPort) Write(p []byte) (int, error) {
	if b.port == nil {
		return 0, ErrNotOpen
	}
	return b.port.Write(p)
}

func (b *BugstPort) Drain() error {
	if b.port == nil {
		return ErrNotOpen
	}
	return b.port.Drain()
}

func (b *BugstPort) Discard() error {
	if b.port == nil {
		return nil
	}
	return b.port.ResetInputBuffer()
}

// RTSPin 用 RTS 线控制收发方向
func (b *BugstPort) RTSPin(highOnTransmit bool) bus.DirectionPin {
	return &rtsPin{port: b, highOnTransmit: highOnTransmit}
}

type rtsPin struct {
	port           *BugstPort
	highOnTransmit bool
}

func (r *rtsPin) SetTransmit(on bool) error {
	if r.port.port == nil {
		return ErrNotOpen
	}
	return r.port.port.SetRTS(on == r.highOnTransmit)
}

func bugstParity(p string) serial.Parity {
	switch p {
	case "E":
		return serial.EvenParity
	case "O":
		return serial.OddParity
	default:
		return serial.NoParity
	}
}

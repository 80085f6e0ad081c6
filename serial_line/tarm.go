package serialline

import (
	"errors"
	"io"

	"github.com/tarm/serial"

	"github.com/r19g75/modbus-bus-diag/bus"
)

// TarmPort 基于 github.com/tarm/serial 的通道
type TarmPort struct {
	cfg     Config
	clock   bus.Clock
	port    *serial.Port
	baud    int
	pending int
}

func NewTarmPort(cfg Config, clock bus.Clock) *TarmPort {
	return &TarmPort{cfg: cfg.withDefaults(), clock: clock}
}

func (t *TarmPort) Open(baud int) error {
	if t.port != nil {
		return nil
	}
	c := &serial.Config{
		Name:        t.cfg.Port,
		Baud:        baud,
		ReadTimeout: t.cfg.ReadTimeout,
		Size:        byte(t.cfg.DataBits),
		Parity:      serial.Parity(t.cfg.Parity[0]),
		StopBits:    serial.StopBits(t.cfg.StopBits),
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return bus.ClassifyError(err)
	}
	t.port = port
	t.baud = baud
	t.pending = 0
	return nil
}

func (t *TarmPort) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// Read tarm/serial 在读超时时返回 io.EOF
func (t *TarmPort) Read(p []byte) (int, error) {
	if t.port == nil {
		return 0, ErrNotOpen
	}
	n, err := t.port.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (t *TarmPort) Write(p []byte) (int, error) {
	if t.port == nil {
		return 0, ErrNotOpen
	}
	n, err := t.port.Write(p)
	t.pending += n
	return n, err
}

func (t *TarmPort) Drain() error {
	t.clock.Sleep(lineTime(t.pending, t.baud))
	t.pending = 0
	return nil
}

func (t *TarmPort) Discard() error {
	if t.port == nil {
		return nil
	}
	return t.port.Flush()
}

package serialline

import (
	"errors"
	"io"

	"github.com/goburrow/serial"

	"github.com/r19g75/modbus-bus-diag/bus"
)

// GoburrowPort 基于 github.com/goburrow/serial 的通道
type GoburrowPort struct {
	cfg     Config
	clock   bus.Clock
	port    io.ReadWriteCloser
	baud    int
	pending int
}

func NewGoburrowPort(cfg Config, clock bus.Clock) *GoburrowPort {
	return &GoburrowPort{cfg: cfg.withDefaults(), clock: clock}
}

func (g *GoburrowPort) Open(baud int) error {
	if g.port != nil {
		return nil
	}
	port, err := serial.Open(&serial.Config{
		Address:  g.cfg.Port,
		BaudRate: baud,
		DataBits: g.cfg.DataBits,
		StopBits: g.cfg.StopBits,
		Parity:   g.cfg.Parity,
		Timeout:  g.cfg.ReadTimeout,
	})
	if err != nil {
		return bus.ClassifyError(err)
	}
	g.port = port
	g.baud = baud
	g.pending = 0
	return nil
}

func (g *GoburrowPort) Close() error {
	if g.port == nil {
		return nil
	}
	err := g.port.Close()
	g.port = nil
	return err
}

// Read 读超时视为没有数据
func (g *GoburrowPort) Read(p []byte) (int, error) {
	if g.port == nil {
		return 0, ErrNotOpen
	}
	n, err := g.port.Read(p)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, err
}

func (g *GoburrowPort) Write(p []byte) (int, error) {
	if g.port == nil {
		return 0, ErrNotOpen
	}
	n, err := g.port.Write(p)
	g.pending += n
	return n, err
}

// Drain goburrow/serial 没有 tcdrain，按线路时间等待已写入的字节发送完成
func (g *GoburrowPort) Drain() error {
	g.clock.Sleep(lineTime(g.pending, g.baud))
	g.pending = 0
	return nil
}

// Discard 读到线路空闲为止
func (g *GoburrowPort) Discard() error {
	if g.port == nil {
		return nil
	}
	var scratch [64]byte
	for i := 0; i < 64; i++ {
		n, err := g.Read(scratch[:])
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotTransmitting = errors.New("transceiver is not in transmit direction")
	ErrShortWrite      = errors.New("short write")
)

// DirectionPin 控制半双工收发器的方向（DE/RE 引脚）
type DirectionPin interface {
	SetTransmit(on bool) error
}

// NopPin 自动方向控制的收发器使用，什么都不做
type NopPin struct{}

func (NopPin) SetTransmit(bool) error { return nil }

// Transceiver 半双工收发器，同一时间只能有一个持有者处于发送方向。
// 发送方向只能通过 Acquire 得到的 Lease 释放
type Transceiver struct {
	bus      sync.Mutex // Acquire 到 Release 之间一直持有
	pin      DirectionPin
	clock    Clock
	txSettle time.Duration
	rxSettle time.Duration

	state        sync.Mutex
	transmitting bool
}

// Lease 发送方向的持有凭证，只能释放一次
type Lease struct {
	t        *Transceiver
	released bool
}

func NewTransceiver(pin DirectionPin, clock Clock, txSettle, rxSettle time.Duration) *Transceiver {
	if pin == nil {
		pin = NopPin{}
	}
	return &Transceiver{
		pin:      pin,
		clock:    clock,
		txSettle: txSettle,
		rxSettle: rxSettle,
	}
}

// Acquire 切换到发送方向并等待 txSettle
func (t *Transceiver) Acquire() (*Lease, error) {
	t.bus.Lock()
	if err := t.pin.SetTransmit(true); err != nil {
		t.bus.Unlock()
		return nil, fmt.Errorf("set transmit direction: %w", err)
	}
	t.setTransmitting(true)
	t.clock.Sleep(t.txSettle)
	return &Lease{t: t}, nil
}

// Release 切换回接收方向并等待 rxSettle
func (l *Lease) Release() error {
	return l.ReleaseAfter(l.t.rxSettle)
}

// ReleaseAfter 切换回接收方向并等待 settle
func (l *Lease) ReleaseAfter(settle time.Duration) error {
	if l.released {
		return ErrNotTransmitting
	}
	l.released = true
	t := l.t
	defer t.bus.Unlock()
	t.setTransmitting(false)
	err := t.pin.SetTransmit(false)
	t.clock.Sleep(settle)
	if err != nil {
		return fmt.Errorf("set receive direction: %w", err)
	}
	return nil
}

// Write 写入并等待发送完成，Lease 释放后返回 ErrNotTransmitting
func (l *Lease) Write(ch Channel, frame []byte) error {
	if l.released {
		return ErrNotTransmitting
	}
	n, err := ch.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(frame))
	}
	return ch.Drain()
}

// Receive 等待当前持有者释放后把方向置为接收，用于通道打开之后
func (t *Transceiver) Receive() error {
	t.bus.Lock()
	defer t.bus.Unlock()
	t.setTransmitting(false)
	if err := t.pin.SetTransmit(false); err != nil {
		return fmt.Errorf("set receive direction: %w", err)
	}
	return nil
}

// Transmitting 是否处于发送方向
func (t *Transceiver) Transmitting() bool {
	t.state.Lock()
	defer t.state.Unlock()
	return t.transmitting
}

func (t *Transceiver) setTransmitting(on bool) {
	t.state.Lock()
	t.transmitting = on
	t.state.Unlock()
}

// Send 完整的发送流程：获取方向、写入、等待发送完成、释放方向
func (t *Transceiver) Send(ch Channel, frame []byte) error {
	return t.SendSettle(ch, frame, t.rxSettle)
}

// SendSettle 与 Send 相同，释放后等待 settle 而不是 rxSettle
func (t *Transceiver) SendSettle(ch Channel, frame []byte, settle time.Duration) error {
	lease, err := t.Acquire()
	if err != nil {
		return err
	}
	werr := lease.Write(ch, frame)
	rerr := lease.ReleaseAfter(settle)
	if werr != nil {
		return werr
	}
	return rerr
}

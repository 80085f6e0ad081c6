package serialline

import (
	"sync"

	"github.com/r19g75/modbus-bus-diag/bus"
)

// ErrNotOpen 通道未打开，属于需要重新打开的连接错误
var ErrNotOpen = bus.NewLineError(bus.ErrorTypeConnection, "serial line is not open", nil)

// Responder 模拟总线上的从站，根据当前波特率和收到的请求返回响应字节
type Responder interface {
	Respond(baud int, query []byte) []byte
}

// ResponderFunc 函数适配
type ResponderFunc func(baud int, query []byte) []byte

func (f ResponderFunc) Respond(baud int, query []byte) []byte { return f(baud, query) }

// MemoryLine 进程内的模拟总线，用于测试和演示
type MemoryLine struct {
	mu         sync.Mutex
	open       bool
	baud       int
	rx         []byte
	writes     [][]byte
	opens      []int
	chunk      int
	responder  Responder
	pin        *MemoryPin
	pinOnOpen  bool
	violations int
	reads      int
}

func NewMemoryLine(responder Responder) *MemoryLine {
	return &MemoryLine{responder: responder}
}

// SetChunk 限制每次 Read 返回的最大字节数，0 表示不限制
func (m *MemoryLine) SetChunk(n int) {
	m.mu.Lock()
	m.chunk = n
	m.mu.Unlock()
}

// Pin 返回与线路绑定的方向引脚，写入时会检查方向
func (m *MemoryLine) Pin() *MemoryPin {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pin == nil {
		m.pin = &MemoryPin{}
	}
	return m.pin
}

// AssertPinOnOpen 打开时把方向引脚置为发送，模拟打开端口默认拉高 RTS 的驱动
func (m *MemoryLine) AssertPinOnOpen(on bool) {
	m.mu.Lock()
	m.pinOnOpen = on
	m.mu.Unlock()
}

func (m *MemoryLine) Open(baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinOnOpen && m.pin != nil {
		_ = m.pin.SetTransmit(true)
	}
	m.open = true
	m.baud = baud
	m.opens = append(m.opens, baud)
	return nil
}

func (m *MemoryLine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

func (m *MemoryLine) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if !m.open {
		return 0, ErrNotOpen
	}
	n := len(p)
	if m.chunk > 0 && n > m.chunk {
		n = m.chunk
	}
	n = copy(p[:n], m.rx)
	m.rx = m.rx[n:]
	return n, nil
}

func (m *MemoryLine) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, ErrNotOpen
	}
	if m.pin != nil && !m.pin.Transmitting() {
		m.violations++
	}
	frame := append([]byte(nil), p...)
	m.writes = append(m.writes, frame)
	if m.responder != nil {
		m.rx = append(m.rx, m.responder.Respond(m.baud, frame)...)
	}
	return len(p), nil
}

func (m *MemoryLine) Drain() error { return nil }

func (m *MemoryLine) Discard() error {
	m.mu.Lock()
	m.rx = nil
	m.mu.Unlock()
	return nil
}

// Inject 模拟总线上其他设备发出的字节
func (m *MemoryLine) Inject(data []byte) {
	m.mu.Lock()
	m.rx = append(m.rx, data...)
	m.mu.Unlock()
}

// Baud 当前打开的波特率，未打开时为 0
func (m *MemoryLine) Baud() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0
	}
	return m.baud
}

func (m *MemoryLine) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Opens 每次 Open 使用的波特率
func (m *MemoryLine) Opens() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.opens...)
}

// Writes 所有写入的帧
func (m *MemoryLine) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.writes...)
}

// Reads Read 被调用的次数
func (m *MemoryLine) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Violations 在接收方向下发生的写入次数
func (m *MemoryLine) Violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations
}

// MemoryPin 记录方向切换
type MemoryPin struct {
	mu           sync.Mutex
	transmitting bool
	switches     int
}

func (p *MemoryPin) SetTransmit(on bool) error {
	p.mu.Lock()
	p.transmitting = on
	p.switches++
	p.mu.Unlock()
	return nil
}

func (p *MemoryPin) Transmitting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transmitting
}

func (p *MemoryPin) Switches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.switches
}
